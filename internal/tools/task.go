package tools

import (
	"context"
	"fmt"
	"strings"

	"skald/internal/agent/ports"
)

// UpdatePlanTool records the model's working plan so streaming clients can
// show progress. The plan is advisory; it is never fed back to the backend.
type UpdatePlanTool struct{}

func NewUpdatePlan() *UpdatePlanTool { return &UpdatePlanTool{} }

func (t *UpdatePlanTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "update_plan",
		Description: "Announce or revise your working plan for answering. " +
			"Call this before long multi-step lookups so the user sees what you are doing.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"plan": {Type: "string", Description: "The current plan, a short numbered list"},
			},
			Required: []string{"plan"},
		},
	}
}

func (t *UpdatePlanTool) Execute(_ context.Context, call ports.ToolCall, tcx *ports.TurnContext) (string, error) {
	plan, err := requiredString(call.Arguments, "plan")
	if err != nil {
		return "", err
	}
	if tcx.Logger != nil {
		tcx.Logger.Debug("plan updated (%d bytes)", len(plan))
	}
	return "Plan recorded.", nil
}

// UpdateCitationsTool pushes inline reference markers through the task's
// citation pipeline ahead of the final text, so clients can render sources
// while the answer is still streaming.
type UpdateCitationsTool struct{}

func NewUpdateCitations() *UpdateCitationsTool { return &UpdateCitationsTool{} }

func (t *UpdateCitationsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "update_citations",
		Description: "Register the sources you will cite, using inline markers of the " +
			"form [c1]: TYPE/ID. Markers in your answer text are picked up automatically; " +
			"use this only to announce sources early.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"text": {Type: "string", Description: "Text containing [cN]: TYPE/ID markers"},
			},
			Required: []string{"text"},
		},
	}
}

func (t *UpdateCitationsTool) Execute(ctx context.Context, call ports.ToolCall, tcx *ports.TurnContext) (string, error) {
	text, err := requiredString(call.Arguments, "text")
	if err != nil {
		return "", err
	}
	if tcx.Citations == nil {
		return "", fmt.Errorf("no citation pipeline attached to this task")
	}

	resolved, err := tcx.Citations.RecordText(ctx, text)
	if err != nil {
		return "", err
	}
	if len(resolved) == 0 {
		return "No citation markers found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Registered %d citation(s):\n", len(resolved))
	for _, c := range resolved {
		fmt.Fprintf(&b, "- [%d] %s\n", c.Number, c.Title)
	}
	return b.String(), nil
}

// TaskStatusTool lets the model report progress and signal completion. The
// dispatcher watches for the complete status; the handler just acknowledges.
type TaskStatusTool struct{}

func NewTaskStatus() *TaskStatusTool { return &TaskStatusTool{} }

func (t *TaskStatusTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "task_status",
		Description: "Report the task's status. Call with status \"complete\" once your " +
			"answer is finished; call with \"in_progress\" and a note to report progress.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"status": {
					Type:        "string",
					Description: "One of: in_progress, complete",
					Enum:        []any{"in_progress", "complete"},
				},
				"note": {Type: "string", Description: "Optional short progress note"},
			},
			Required: []string{"status"},
		},
	}
}

func (t *TaskStatusTool) Execute(_ context.Context, call ports.ToolCall, _ *ports.TurnContext) (string, error) {
	status, err := requiredString(call.Arguments, "status")
	if err != nil {
		return "", err
	}
	if note := stringArg(call.Arguments, "note"); note != "" {
		return fmt.Sprintf("Status %s noted: %s", status, note), nil
	}
	return fmt.Sprintf("Status %s noted.", status), nil
}
