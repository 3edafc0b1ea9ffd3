package ports

import "context"

// ModelProvider represents any LLM provider capable of streaming a completion.
type ModelProvider interface {
	// StreamComplete sends messages and consumes the provider's output stream.
	// Callbacks fire in stream order; the returned response aggregates
	// everything the stream produced.
	StreamComplete(ctx context.Context, req CompletionRequest, callbacks CompletionStreamCallbacks) (*CompletionResponse, error)

	// Model returns the model identifier
	Model() string
}

// CompletionRequest contains all parameters for one model invocation
type CompletionRequest struct {
	Messages      []Message        `json:"messages"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Temperature   float64          `json:"temperature,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	StopSequences []string         `json:"stop,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

// CompletionResponse is the model's aggregated response
type CompletionResponse struct {
	Content      string         `json:"content"`
	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
	FinishReason string         `json:"finish_reason"`
	Usage        TokenUsage     `json:"usage"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ContentDelta represents a streamed assistant content fragment. Final marks a
// text-end boundary: no delta of a later segment is delivered before the
// callback invoked for Final returns.
type ContentDelta struct {
	Delta string
	Final bool
}

// CompletionStreamCallbacks captures optional hooks invoked while streaming a
// model response. Nil functions are ignored. Returning an error aborts the
// stream and propagates out of StreamComplete.
type CompletionStreamCallbacks struct {
	OnContentDelta func(ContentDelta) error
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message roles as exchanged with the model provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a conversation message owned by the active session.
// Immutable once appended.
type Message struct {
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	ToolCallID  string         `json:"tool_call_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
