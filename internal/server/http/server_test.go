package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skald/internal/agent/domain"
	"skald/internal/agent/ports"
	"skald/internal/server/app"
)

type stubEvent struct {
	eventType string
	chatID    string
	seq       int64
}

func (e *stubEvent) EventType() string    { return e.eventType }
func (e *stubEvent) Timestamp() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
func (e *stubEvent) GetChatID() string    { return e.chatID }
func (e *stubEvent) Seq() int64           { return e.seq }

func newTestServer(broadcaster *app.EventBroadcaster) *Server {
	return NewServer(Config{Debug: false}, nil, broadcaster, nil)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(app.NewEventBroadcaster())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAnswerRejectsMalformedBody(t *testing.T) {
	server := newTestServer(app.NewEventBroadcaster())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/answer", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid request body")
}

func TestAnswerRejectsBadScope(t *testing.T) {
	server := newTestServer(app.NewEventBroadcaster())

	body := `{"member_id":"m","input":"hi","scope":"galaxy"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/answer", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown scope")
}

func TestAnswerRejectsMissingFields(t *testing.T) {
	server := newTestServer(app.NewEventBroadcaster())

	for name, body := range map[string]string{
		"empty input":    `{"member_id":"m","input":"   "}`,
		"missing member": `{"input":"hi"}`,
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/answer", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestParseScope(t *testing.T) {
	scope, ok := parseScope("")
	require.True(t, ok)
	require.Equal(t, ports.ScopeGeneral, scope)

	scope, ok = parseScope(" Document ")
	require.True(t, ok)
	require.Equal(t, ports.ScopeDocument, scope)

	_, ok = parseScope("nope")
	require.False(t, ok)
}

func TestExtractBearerToken(t *testing.T) {
	require.Equal(t, "abc123", extractBearerToken("Bearer abc123"))
	require.Equal(t, "abc123", extractBearerToken("bearer abc123"))
	require.Empty(t, extractBearerToken("Basic abc123"))
	require.Empty(t, extractBearerToken(""))
}

func TestSerializeEventShapes(t *testing.T) {
	data, err := serializeEvent(&domain.TextDeltaEvent{Turn: 2, Delta: "hi"})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, "text.delta", payload["event_type"])
	require.Equal(t, float64(2), payload["turn"])
	require.Equal(t, "hi", payload["delta"])

	data, err = serializeEvent(&domain.TaskCompletedEvent{Answer: "done", Turns: 3, StopReason: "completed"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, "done", payload["answer"])
	require.Equal(t, "completed", payload["stop_reason"])

	data, err = serializeEvent(&stubEvent{eventType: "custom", chatID: "c1", seq: 9})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, "custom", payload["event_type"])
	require.Equal(t, "c1", payload["chat_id"])
	require.Equal(t, float64(9), payload["seq"])
}

func TestSSESenderWritesWireFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	sender := newSSESender(rec, rec)

	require.NoError(t, sender.Send(context.Background(), &domain.TextDeltaEvent{Turn: 1, Delta: "hi"}))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "event: text.delta\ndata: "))
	require.True(t, strings.HasSuffix(body, "\n\n"))
	require.Contains(t, body, `"delta":"hi"`)
	require.True(t, rec.Flushed)
}

func TestSSESenderStopsOnCancelledContext(t *testing.T) {
	rec := httptest.NewRecorder()
	sender := newSSESender(rec, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sender.Send(ctx, &domain.TextDeltaEvent{Delta: "late"})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, rec.Body.String())
}

func TestSSEStreamDeliversEvents(t *testing.T) {
	broadcaster := app.NewEventBroadcaster()
	server := newTestServer(broadcaster)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/chats/chat-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimRight(line, "\n")
	}

	require.Equal(t, "event: connected", readLine())
	require.Contains(t, readLine(), `"chat_id":"chat-1"`)
	require.Empty(t, readLine())

	// Wait until the subscription is registered before publishing.
	require.Eventually(t, func() bool {
		return broadcaster.ClientCount("chat-1") == 1
	}, time.Second, 5*time.Millisecond)

	broadcaster.OnEvent(&stubEvent{eventType: "task.started", chatID: "chat-1", seq: 1})

	require.Equal(t, "event: task.started", readLine())
	require.Contains(t, readLine(), `"seq":1`)
}

func TestSSEStreamIgnoresOtherChats(t *testing.T) {
	broadcaster := app.NewEventBroadcaster()
	server := newTestServer(broadcaster)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/chats/chat-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for i := 0; i < 3; i++ { // connected preamble
		_, err := reader.ReadString('\n')
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return broadcaster.ClientCount("chat-1") == 1
	}, time.Second, 5*time.Millisecond)

	broadcaster.OnEvent(&stubEvent{eventType: "text.delta", chatID: "chat-other", seq: 1})
	broadcaster.OnEvent(&stubEvent{eventType: "task.completed", chatID: "chat-1", seq: 2})

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: task.completed\n", line)
}
