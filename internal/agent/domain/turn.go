package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"skald/internal/agent/ports"
	"skald/internal/observability"
)

// TurnCallbacks are the suspension points a turn exposes to its caller. Both
// are awaited: OnTextEnd for segment N completes before any delta of segment
// N+1 is delivered.
type TurnCallbacks struct {
	OnTextDelta func(ctx context.Context, delta string) error
	OnTextEnd   func(ctx context.Context) error
}

// TurnOutcome is everything one model invocation produced: the raw assistant
// message to append verbatim to history, the tool messages and results to
// feed the next turn, and whether a completion signal was seen.
type TurnOutcome struct {
	Assistant    ports.Message
	ToolMessages []ports.Message
	Results      []ports.ToolResult
	Completed    bool
	FinishReason string
	Usage        ports.TokenUsage
	ModelLatency time.Duration
}

// TurnExecutor drives exactly one model invocation and resolves all tool
// calls it requests, strictly in the order the model returned them.
type TurnExecutor struct {
	registry ports.ToolRegistry
	logger   ports.Logger
	clock    ports.Clock
}

// NewTurnExecutor builds an executor over a tool registry.
func NewTurnExecutor(registry ports.ToolRegistry, logger ports.Logger, clock ports.Clock) *TurnExecutor {
	return &TurnExecutor{
		registry: registry,
		logger:   orNop(logger),
		clock:    orSystemClock(clock),
	}
}

// ExecuteTurn invokes the model once with the allowed tool set, streams its
// output through the callbacks, then dispatches each requested tool call
// sequentially. A handler failure aborts the whole turn.
func (e *TurnExecutor) ExecuteTurn(
	ctx context.Context,
	tcx *ports.TurnContext,
	messages []ports.Message,
	turn int,
	callbacks TurnCallbacks,
	emit func(Event),
	base func() BaseEvent,
) (*TurnOutcome, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTaskTurn,
		attribute.String(observability.AttrModel, tcx.ModelID),
		attribute.Int(observability.AttrTurn, turn),
	)
	defer span.End()

	allowed := AllowedTools(tcx.Scope, tcx.KnowledgeEnabled)
	defs := e.registry.Definitions(allowed)

	req := ports.CompletionRequest{
		Messages: e.buildModelMessages(tcx, messages),
		Tools:    defs,
		Metadata: map[string]any{"request_id": tcx.RequestID},
	}

	e.logger.Debug("turn %d: calling model %s with %d messages, %d tools",
		turn, tcx.ModelID, len(req.Messages), len(defs))

	// Errors raised by our own callbacks surface to the caller as-is; only
	// provider-side failures get the model-call wrap.
	var callbackErr error
	modelStarted := e.clock.Now()
	resp, err := tcx.Provider.StreamComplete(ctx, req, ports.CompletionStreamCallbacks{
		OnContentDelta: func(delta ports.ContentDelta) error {
			if delta.Final {
				if callbacks.OnTextEnd != nil {
					if err := callbacks.OnTextEnd(ctx); err != nil {
						callbackErr = err
						return err
					}
				}
				return nil
			}
			if callbacks.OnTextDelta != nil {
				if err := callbacks.OnTextDelta(ctx, delta.Delta); err != nil {
					callbackErr = err
					return err
				}
			}
			return nil
		},
	})
	modelLatency := e.clock.Now().Sub(modelStarted)
	if err != nil {
		if callbackErr != nil {
			return nil, callbackErr
		}
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("model call failed: nil response")
	}

	if resp.FinishReason == "length" {
		// Nothing more to do this turn; not an error.
		e.logger.Warn("turn %d: model stopped on length", turn)
	}

	outcome := &TurnOutcome{
		Assistant: ports.Message{
			Role:      ports.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		},
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		ModelLatency: modelLatency,
	}

	for _, call := range resp.ToolCalls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, completed, err := e.dispatch(ctx, tcx, call, allowed, turn, emit, base)
		if err != nil {
			return nil, err
		}
		if result != nil {
			outcome.Results = append(outcome.Results, *result)
		}
		if completed {
			// A completion signal ends the turn immediately; remaining
			// calls are not dispatched.
			outcome.Completed = true
			break
		}
	}

	outcome.ToolMessages = buildToolMessages(outcome.Results)
	return outcome, nil
}

// dispatch runs one tool call through its registered handler. Unrecognized or
// disallowed tool names are skipped with a warning; they look like model (or
// registry) bugs but must not abort the turn.
func (e *TurnExecutor) dispatch(
	ctx context.Context,
	tcx *ports.TurnContext,
	call ports.ToolCall,
	allowed []string,
	turn int,
	emit func(Event),
	base func() BaseEvent,
) (*ports.ToolResult, bool, error) {
	if !toolAllowed(allowed, call.Name) {
		e.logger.Warn("turn %d: model requested tool %q outside the allowed set, ignoring", turn, call.Name)
		return nil, false, nil
	}
	handler, ok := e.registry.Get(call.Name)
	if !ok {
		e.logger.Warn("turn %d: no handler registered for tool %q, ignoring", turn, call.Name)
		return nil, false, nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanToolExecute,
		attribute.String(observability.AttrToolName, call.Name),
	)
	defer span.End()

	emit(&ToolStartedEvent{
		BaseEvent: base(),
		Turn:      turn,
		CallID:    call.ID,
		ToolName:  call.Name,
		Arguments: call.Arguments,
	})

	started := e.clock.Now()
	output, err := handler.Execute(ctx, call, tcx)
	if err != nil {
		return nil, false, fmt.Errorf("tool %s failed: %w", call.Name, err)
	}

	emit(&ToolCompletedEvent{
		BaseEvent: base(),
		Turn:      turn,
		CallID:    call.ID,
		ToolName:  call.Name,
		Result:    output,
		Duration:  e.clock.Now().Sub(started),
	})

	if call.Name == ToolUpdatePlan {
		if plan, ok := call.Arguments["plan"].(string); ok {
			emit(&PlanUpdatedEvent{BaseEvent: base(), Plan: plan})
		}
	}

	result := &ports.ToolResult{CallID: call.ID, Name: call.Name, Content: output}
	return result, call.Name == ToolTaskStatus && taskStatusComplete(call), nil
}

// buildModelMessages prepends the system prompt and environment context to
// the session history.
func (e *TurnExecutor) buildModelMessages(tcx *ports.TurnContext, messages []ports.Message) []ports.Message {
	out := make([]ports.Message, 0, len(messages)+2)
	if tcx.SystemPrompt != "" {
		out = append(out, ports.Message{Role: ports.RoleSystem, Content: tcx.SystemPrompt})
	}
	if tcx.EnvContext != "" {
		out = append(out, ports.Message{Role: ports.RoleSystem, Content: tcx.EnvContext})
	}
	return append(out, messages...)
}

// buildToolMessages converts tool results into the tool-role messages fed
// back as the next turn's input.
func buildToolMessages(results []ports.ToolResult) []ports.Message {
	messages := make([]ports.Message, 0, len(results))
	for _, result := range results {
		messages = append(messages, ports.Message{
			Role:        ports.RoleTool,
			Content:     result.Content,
			ToolCallID:  result.CallID,
			ToolResults: []ports.ToolResult{result},
		})
	}
	return messages
}

// taskStatusComplete reports whether a task_status call signals completion.
func taskStatusComplete(call ports.ToolCall) bool {
	raw, ok := call.Arguments["status"]
	if !ok {
		return false
	}
	status, ok := raw.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "complete", "completed", "done", "finished":
		return true
	default:
		return false
	}
}
