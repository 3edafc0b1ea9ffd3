// Package llm implements the OpenAI-compatible streaming model client and
// the model-to-provider registry that picks one per request.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel/attribute"

	"skald/internal/agent/ports"
	skalderrors "skald/internal/errors"
	"skald/internal/logging"
	"skald/internal/observability"
)

const defaultRequestTimeout = 120 * time.Second

// ClientConfig configures one provider connection.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      logging.Logger
}

// Client streams chat completions from any OpenAI-compatible endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      logging.Logger
}

// NewClient builds a streaming client for one model on one provider.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm client: base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm client: model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logging.OrNop(cfg.Logger),
	}, nil
}

func (c *Client) Model() string { return c.model }

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			Role      string          `json:"role"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// StreamComplete implements ports.ModelProvider. Content deltas are relayed
// as they arrive; a Final delta marks the end of a text segment, which
// happens when the model switches to tool calls or the stream closes. The
// Final callback is awaited before any later delta is delivered.
func (c *Client) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanModelStream,
		attribute.String(observability.AttrModel, c.model),
	)
	defer span.End()

	endpoint := c.baseURL + "/chat/completions"

	oaiReq := map[string]any{
		"model":    c.model,
		"messages": convertMessages(req.Messages),
		"stream":   true,
	}
	if temperature := firstNonZero(req.Temperature, c.temperature); temperature != 0 {
		oaiReq["temperature"] = temperature
	}
	if maxTokens := firstNonZeroInt(req.MaxTokens, c.maxTokens); maxTokens > 0 {
		oaiReq["max_tokens"] = maxTokens
	}
	if len(req.Tools) > 0 {
		oaiReq["tools"] = convertTools(req.Tools)
		oaiReq["tool_choice"] = "auto"
	}
	if len(req.StopSequences) > 0 {
		oaiReq["stop"] = append([]string(nil), req.StopSequences...)
	}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, skalderrors.NewValidationError(endpoint, "request not serializable", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, skalderrors.NewTransportError(endpoint, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("model stream: %s model=%s messages=%d tools=%d",
		endpoint, c.model, len(req.Messages), len(req.Tools))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, skalderrors.NewTransportError(endpoint, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, skalderrors.NewTransportError(endpoint, resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	return c.consumeStream(resp.Body, callbacks, endpoint)
}

type toolAccumulator struct {
	id        string
	name      string
	arguments strings.Builder
}

func (c *Client) consumeStream(body io.Reader, callbacks ports.CompletionStreamCallbacks, endpoint string) (*ports.CompletionResponse, error) {
	scanner := newStreamScanner(body)

	accumulators := make(map[int]*toolAccumulator)
	var toolOrder []int
	appendToolCall := func(idx int) *toolAccumulator {
		acc, ok := accumulators[idx]
		if !ok {
			acc = &toolAccumulator{}
			accumulators[idx] = acc
			toolOrder = append(toolOrder, idx)
		}
		return acc
	}

	var contentBuilder strings.Builder
	usage := ports.TokenUsage{}
	finishReason := ""
	segmentOpen := false

	closeSegment := func() error {
		if !segmentOpen {
			return nil
		}
		segmentOpen = false
		if callbacks.OnContentDelta != nil {
			return callbacks.OnContentDelta(ports.ContentDelta{Final: true})
		}
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("skipping undecodable stream chunk: %v", err)
			continue
		}

		if chunk.Usage != nil {
			usage.PromptTokens = chunk.Usage.PromptTokens
			usage.CompletionTokens = chunk.Usage.CompletionTokens
			usage.TotalTokens = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}

		if text := choice.Delta.Content; text != "" {
			contentBuilder.WriteString(text)
			segmentOpen = true
			if callbacks.OnContentDelta != nil {
				if err := callbacks.OnContentDelta(ports.ContentDelta{Delta: text}); err != nil {
					return nil, err
				}
			}
		}

		if len(choice.Delta.ToolCalls) > 0 {
			// The model moved on to tool calls; the text segment is done.
			if err := closeSegment(); err != nil {
				return nil, err
			}
			for _, tc := range choice.Delta.ToolCalls {
				acc := appendToolCall(tc.Index)
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					acc.arguments.WriteString(tc.Function.Arguments)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, skalderrors.NewTransportError(endpoint, 0, fmt.Errorf("read response stream: %w", err))
	}
	if err := closeSegment(); err != nil {
		return nil, err
	}

	result := &ports.CompletionResponse{
		Content:      contentBuilder.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}
	for _, idx := range toolOrder {
		acc := accumulators[idx]
		result.ToolCalls = append(result.ToolCalls, ports.ToolCall{
			ID:        acc.id,
			Name:      acc.name,
			Arguments: c.parseToolArguments(acc.name, acc.arguments.String()),
		})
	}
	return result, nil
}

// parseToolArguments decodes one accumulated argument payload. Models
// occasionally emit truncated or unquoted JSON; a repair pass recovers most
// of those instead of dropping the call.
func (c *Client) parseToolArguments(toolName, raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		c.logger.Warn("tool %s arguments unrepairable: %v", toolName, err)
		return map[string]any{}
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		c.logger.Warn("tool %s arguments undecodable after repair: %v", toolName, err)
		return map[string]any{}
	}
	c.logger.Debug("tool %s arguments repaired", toolName)
	return args
}

func convertMessages(msgs []ports.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		m := map[string]any{"role": msg.Role}
		if msg.Content != "" || len(msg.ToolCalls) == 0 {
			m["content"] = msg.Content
		}
		if msg.ToolCallID != "" {
			m["tool_call_id"] = msg.ToolCallID
		}
		if len(msg.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				arguments, err := json.Marshal(call.Arguments)
				if err != nil {
					arguments = []byte("{}")
				}
				calls = append(calls, map[string]any{
					"id":   call.ID,
					"type": "function",
					"function": map[string]any{
						"name":      call.Name,
						"arguments": string(arguments),
					},
				})
			}
			m["tool_calls"] = calls
		}
		out = append(out, m)
	}
	return out
}

func convertTools(tools []ports.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return out
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
