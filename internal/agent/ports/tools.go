package ports

import "context"

// ToolCall represents a request from the model to execute a tool
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the execution result fed back as next-turn input
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ToolDefinition describes a tool for the model
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema defines tool parameters (JSON Schema format)
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolHandler executes a single tool call. Handlers perform their own I/O
// (possibly against the protected service) and return a text payload that
// becomes the ToolResult content.
type ToolHandler interface {
	Execute(ctx context.Context, call ToolCall, tcx *TurnContext) (string, error)

	// Definition returns the tool's schema for the model
	Definition() ToolDefinition
}

// ToolRegistry maps tool names to handlers
type ToolRegistry interface {
	// Register adds a handler; registering a duplicate name is an error
	Register(handler ToolHandler) error

	// Get retrieves a handler by name
	Get(name string) (ToolHandler, bool)

	// Definitions returns schemas for the named tools, in the given order.
	// Unknown names are skipped.
	Definitions(names []string) []ToolDefinition
}
