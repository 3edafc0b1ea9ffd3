package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"skald/internal/agent/ports"
	skalderrors "skald/internal/errors"
)

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newStreamingClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: baseURL, Model: "test-model", APIKey: "key"})
	require.NoError(t, err)
	return client
}

func contentChunk(text string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, text)
}

func TestStreamCompleteRelaysDeltasAndFinal(t *testing.T) {
	server := sseServer(t,
		contentChunk("Hel"),
		contentChunk("lo"),
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	)
	client := newStreamingClient(t, server.URL)

	var got []ports.ContentDelta
	resp, err := client.StreamComplete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: ports.RoleUser, Content: "hi"}},
	}, ports.CompletionStreamCallbacks{
		OnContentDelta: func(delta ports.ContentDelta) error {
			got = append(got, delta)
			return nil
		},
	})

	require.NoError(t, err)
	require.Equal(t, "Hello", resp.Content)
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, []ports.ContentDelta{
		{Delta: "Hel"},
		{Delta: "lo"},
		{Final: true},
	}, got)
}

func TestStreamCompleteClosesSegmentBeforeToolCalls(t *testing.T) {
	server := sseServer(t,
		contentChunk("Let me check."),
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call-1","function":{"name":"search_knowledge","arguments":"{\"qu"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ery\":\"revenue\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	)
	client := newStreamingClient(t, server.URL)

	var events []string
	resp, err := client.StreamComplete(context.Background(), ports.CompletionRequest{}, ports.CompletionStreamCallbacks{
		OnContentDelta: func(delta ports.ContentDelta) error {
			if delta.Final {
				events = append(events, "final")
			} else {
				events = append(events, "delta")
			}
			return nil
		},
	})

	require.NoError(t, err)
	require.Equal(t, []string{"delta", "final"}, events)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "call-1", resp.ToolCalls[0].ID)
	require.Equal(t, "search_knowledge", resp.ToolCalls[0].Name)
	require.Equal(t, map[string]any{"query": "revenue"}, resp.ToolCalls[0].Arguments)
	require.Equal(t, "tool_calls", resp.FinishReason)
}

func TestStreamCompleteAccumulatesParallelToolCalls(t *testing.T) {
	server := sseServer(t,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"read_file","arguments":"{\"file_id\":\"f1\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"b","function":{"name":"task_status","arguments":"{\"status\":\"complete\"}"}}]}}]}`,
		`data: [DONE]`,
	)
	client := newStreamingClient(t, server.URL)

	resp, err := client.StreamComplete(context.Background(), ports.CompletionRequest{}, ports.CompletionStreamCallbacks{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	require.Equal(t, "read_file", resp.ToolCalls[0].Name)
	require.Equal(t, "task_status", resp.ToolCalls[1].Name)
}

func TestStreamCompleteRepairsBrokenArguments(t *testing.T) {
	// Unterminated JSON: the repair pass closes it.
	server := sseServer(t,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"read_file","arguments":"{\"file_id\":\"f1\""}}]}}]}`,
		`data: [DONE]`,
	)
	client := newStreamingClient(t, server.URL)

	resp, err := client.StreamComplete(context.Background(), ports.CompletionRequest{}, ports.CompletionStreamCallbacks{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, map[string]any{"file_id": "f1"}, resp.ToolCalls[0].Arguments)
}

func TestStreamCompleteCallbackErrorAborts(t *testing.T) {
	server := sseServer(t,
		contentChunk("one"),
		contentChunk("two"),
		`data: [DONE]`,
	)
	client := newStreamingClient(t, server.URL)

	_, err := client.StreamComplete(context.Background(), ports.CompletionRequest{}, ports.CompletionStreamCallbacks{
		OnContentDelta: func(ports.ContentDelta) error {
			return fmt.Errorf("consumer gave up")
		},
	})
	require.ErrorContains(t, err, "consumer gave up")
}

func TestStreamCompleteSkipsMalformedChunks(t *testing.T) {
	server := sseServer(t,
		`data: {broken json`,
		contentChunk("ok"),
		`data: [DONE]`,
	)
	client := newStreamingClient(t, server.URL)

	resp, err := client.StreamComplete(context.Background(), ports.CompletionRequest{}, ports.CompletionStreamCallbacks{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
}

func TestStreamCompleteUpstreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)
	client := newStreamingClient(t, server.URL)

	_, err := client.StreamComplete(context.Background(), ports.CompletionRequest{}, ports.CompletionStreamCallbacks{})
	require.True(t, skalderrors.IsTransport(err), "got %T", err)
	require.Equal(t, http.StatusTooManyRequests, skalderrors.StatusCode(err))
}

func TestStreamCompleteSendsToolSchemas(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	client := newStreamingClient(t, server.URL)

	_, err := client.StreamComplete(context.Background(), ports.CompletionRequest{
		Tools: []ports.ToolDefinition{{
			Name:        "read_file",
			Description: "Read a file",
			Parameters:  ports.ParameterSchema{Type: "object"},
		}},
	}, ports.CompletionStreamCallbacks{})
	require.NoError(t, err)

	tools, ok := captured["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	require.Equal(t, "auto", captured["tool_choice"])
	raw, _ := json.Marshal(tools[0])
	require.True(t, strings.Contains(string(raw), "read_file"))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{Model: "m"})
	require.ErrorContains(t, err, "base URL")
	_, err = NewClient(ClientConfig{BaseURL: "http://x"})
	require.ErrorContains(t, err, "model")
}

func TestRegistryResolvesAndCaches(t *testing.T) {
	registry, err := NewRegistry(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"openai":   {BaseURL: "https://api.openai.com/v1"},
			"deepseek": {BaseURL: "https://api.deepseek.com/v1"},
		},
		Models: map[string]string{
			"deepseek-chat": "deepseek",
		},
		DefaultProvider: "openai",
		DefaultModel:    "gpt-4o-mini",
	})
	require.NoError(t, err)

	provider, name, err := registry.ProviderFor("deepseek-chat")
	require.NoError(t, err)
	require.Equal(t, "deepseek", name)
	require.Equal(t, "deepseek-chat", provider.Model())

	// Unknown models fall back to the default provider.
	provider, name, err = registry.ProviderFor("some-new-model")
	require.NoError(t, err)
	require.Equal(t, "openai", name)
	require.Equal(t, "some-new-model", provider.Model())

	// Empty model uses the default model.
	provider, _, err = registry.ProviderFor("")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", provider.Model())

	// Repeated lookups reuse the cached client.
	first, _, err := registry.ProviderFor("deepseek-chat")
	require.NoError(t, err)
	second, _, err := registry.ProviderFor("deepseek-chat")
	require.NoError(t, err)
	require.Same(t, first.(*Client), second.(*Client))
}

func TestRegistryValidation(t *testing.T) {
	_, err := NewRegistry(RegistryConfig{})
	require.ErrorContains(t, err, "no providers")

	_, err = NewRegistry(RegistryConfig{
		Providers:       map[string]ProviderConfig{"a": {BaseURL: "http://x"}},
		DefaultProvider: "missing",
	})
	require.ErrorContains(t, err, "not configured")

	_, err = NewRegistry(RegistryConfig{
		Providers:       map[string]ProviderConfig{"a": {BaseURL: "http://x"}},
		Models:          map[string]string{"m": "nope"},
		DefaultProvider: "a",
	})
	require.ErrorContains(t, err, "unknown provider")
}
