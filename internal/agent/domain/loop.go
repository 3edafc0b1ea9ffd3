package domain

import (
	"context"
	"time"

	"skald/internal/agent/ports"
)

// DefaultMaxTurns bounds the task loop. Without a budget a model that never
// signals completion would loop forever.
const DefaultMaxTurns = 8

// maxStallNudges bounds how often the loop re-prompts a model that produced
// tool calls the dispatcher could not act on.
const maxStallNudges = 2

const stallNudgeMessage = "Call one of the available tools to make progress, " +
	"or call task_status with status \"complete\" if you are done."

const finalAnswerMessage = "Please provide your final answer to the user's question now."

// Stop reasons reported in TaskResult and task.completed events.
const (
	StopReasonCompleted   = "completed"
	StopReasonFinalAnswer = "final_answer"
	StopReasonStatusOnly  = "status_only"
	StopReasonStalled     = "stalled"
	StopReasonMaxTurns    = "max_turns"
)

// SessionState is the mutable ordered message sequence scoped to one task
// run. Created from normalized history, destroyed at request end.
type SessionState struct {
	Messages    []ports.Message
	Turns       int
	ToolResults []ports.ToolResult
}

// TaskResult is the terminal outcome of one task loop run. Usage sums token
// consumption across every model invocation the run made.
type TaskResult struct {
	Answer     string
	Turns      int
	Citations  []ports.Citation
	StopReason string
	Duration   time.Duration
	Usage      ports.TokenUsage
}

// TaskLoopConfig carries the task loop's dependencies. OnModelCall, when set,
// is invoked after every successful model invocation with that call's token
// usage and wall-clock latency.
type TaskLoopConfig struct {
	Executor    *TurnExecutor
	Listener    ports.EventListener
	Logger      ports.Logger
	Clock       ports.Clock
	MaxTurns    int
	OnModelCall func(usage ports.TokenUsage, latency time.Duration)
}

// TaskLoop repeatedly runs the turn executor, feeding tool outputs back in,
// until a termination condition is reached.
type TaskLoop struct {
	executor    *TurnExecutor
	listener    ports.EventListener
	logger      ports.Logger
	clock       ports.Clock
	maxTurns    int
	onModelCall func(usage ports.TokenUsage, latency time.Duration)
}

// NewTaskLoop builds a task loop. MaxTurns defaults to DefaultMaxTurns.
func NewTaskLoop(cfg TaskLoopConfig) *TaskLoop {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &TaskLoop{
		executor:    cfg.Executor,
		listener:    cfg.Listener,
		logger:      orNop(cfg.Logger),
		clock:       orSystemClock(cfg.Clock),
		maxTurns:    maxTurns,
		onModelCall: cfg.OnModelCall,
	}
}

// Run drives the turn executor until done. The supplied history seeds the
// session; input is appended as the user's new message.
func (l *TaskLoop) Run(ctx context.Context, tcx *ports.TurnContext, history []ports.Message, input string) (*TaskResult, error) {
	rt := newTaskRuntime(l, ctx, tcx, history, input)
	return rt.run()
}

// taskRuntime owns iteration control, event sequencing, and cancellation
// handling for one run, leaving the loop type stateless across requests.
type taskRuntime struct {
	loop  *TaskLoop
	ctx   context.Context
	tcx   *ports.TurnContext
	state *SessionState
	acc   *turnAccumulator
	seq   seqCounter

	input       string
	startTime   time.Time
	stallNudges int
	usage       ports.TokenUsage
}

func newTaskRuntime(loop *TaskLoop, ctx context.Context, tcx *ports.TurnContext, history []ports.Message, input string) *taskRuntime {
	rt := &taskRuntime{
		loop:      loop,
		ctx:       ctx,
		tcx:       tcx,
		state:     &SessionState{Messages: append([]ports.Message(nil), history...)},
		input:     input,
		startTime: loop.clock.Now(),
	}

	resolver := NewCitationResolver(tcx.Backend, tcx.SummaryCache, loop.logger)
	rt.acc = newTurnAccumulator(tcx, resolver, loop.listener, rt.base, loop.logger)

	// The accumulator doubles as the request's citation recorder so the
	// update_citations handler shares the same pipeline.
	if tcx.Citations == nil {
		tcx.Citations = rt.acc
	}
	if tcx.Events == nil {
		tcx.Events = loop.listener
	}
	return rt
}

func (rt *taskRuntime) base() BaseEvent {
	return BaseEvent{
		timestamp: rt.loop.clock.Now(),
		chatID:    rt.tcx.ChatID,
		seq:       rt.seq.next(),
	}
}

func (rt *taskRuntime) emit(event Event) {
	if rt.loop.listener != nil {
		rt.loop.listener.OnEvent(event)
	}
}

func (rt *taskRuntime) run() (*TaskResult, error) {
	rt.emit(&TaskStartedEvent{BaseEvent: rt.base(), Input: rt.input, ModelID: rt.tcx.ModelID})
	rt.state.Messages = append(rt.state.Messages, ports.Message{Role: ports.RoleUser, Content: rt.input})

	for rt.state.Turns < rt.loop.maxTurns {
		if err := rt.ctx.Err(); err != nil {
			rt.loop.logger.Info("task cancelled after %d turns: %v", rt.state.Turns, err)
			return nil, err
		}

		rt.state.Turns++
		rt.acc.turn = rt.state.Turns
		rt.loop.logger.Debug("=== turn %d/%d ===", rt.state.Turns, rt.loop.maxTurns)

		outcome, err := rt.runTurn()
		if err != nil {
			rt.emit(&TaskErrorEvent{BaseEvent: rt.base(), Err: err})
			return nil, err
		}

		if stop, reason := rt.observe(outcome); stop {
			return rt.finalize(reason)
		}
	}

	return rt.handleMaxTurns()
}

func (rt *taskRuntime) runTurn() (*TurnOutcome, error) {
	callbacks := TurnCallbacks{
		OnTextDelta: rt.acc.onTextDelta,
		OnTextEnd:   rt.acc.onTextEnd,
	}
	outcome, err := rt.loop.executor.ExecuteTurn(
		rt.ctx, rt.tcx, rt.state.Messages, rt.state.Turns, callbacks, rt.emit, rt.base,
	)
	if err != nil {
		return nil, err
	}
	rt.usage = addUsage(rt.usage, outcome.Usage)
	if rt.loop.onModelCall != nil {
		rt.loop.onModelCall(outcome.Usage, outcome.ModelLatency)
	}
	return outcome, nil
}

func addUsage(total, delta ports.TokenUsage) ports.TokenUsage {
	total.PromptTokens += delta.PromptTokens
	total.CompletionTokens += delta.CompletionTokens
	total.TotalTokens += delta.TotalTokens
	return total
}

// observe appends the turn's raw messages to the session and decides whether
// a termination condition holds.
func (rt *taskRuntime) observe(outcome *TurnOutcome) (bool, string) {
	if outcome.Assistant.Content != "" || len(outcome.Assistant.ToolCalls) > 0 {
		rt.state.Messages = append(rt.state.Messages, outcome.Assistant)
	}
	rt.state.Messages = append(rt.state.Messages, outcome.ToolMessages...)
	rt.state.ToolResults = append(rt.state.ToolResults, outcome.Results...)

	if outcome.Completed {
		return true, StopReasonCompleted
	}

	// The model had nothing further to request.
	if len(outcome.Assistant.ToolCalls) == 0 {
		return true, StopReasonFinalAnswer
	}

	// Only non-actionable status results remain after filtering.
	if len(outcome.Results) > 0 && !hasActionableResults(outcome.Results) {
		return true, StopReasonStatusOnly
	}

	// Tool calls were requested but none produced a result; nudge the model
	// instead of stalling, bounded to avoid pure retry loops.
	if len(outcome.Results) == 0 {
		rt.stallNudges++
		if rt.stallNudges > maxStallNudges {
			rt.loop.logger.Warn("task stalled after %d nudges, stopping", rt.stallNudges-1)
			return true, StopReasonStalled
		}
		rt.loop.logger.Warn("turn %d produced no tool results, injecting nudge", rt.state.Turns)
		rt.state.Messages = append(rt.state.Messages, ports.Message{
			Role:    ports.RoleUser,
			Content: stallNudgeMessage,
		})
	}

	return false, ""
}

// handleMaxTurns runs when the step budget is exhausted. If no answer text
// was produced yet, one final turn is requested before giving up.
func (rt *taskRuntime) handleMaxTurns() (*TaskResult, error) {
	rt.loop.logger.Warn("max turns (%d) reached, requesting final answer", rt.loop.maxTurns)

	if rt.acc.answer() == "" {
		if err := rt.ctx.Err(); err != nil {
			return nil, err
		}
		rt.state.Messages = append(rt.state.Messages, ports.Message{
			Role:    ports.RoleUser,
			Content: finalAnswerMessage,
		})
		outcome, err := rt.runTurn()
		if err != nil {
			rt.emit(&TaskErrorEvent{BaseEvent: rt.base(), Err: err})
			return nil, err
		}
		if outcome.Assistant.Content != "" {
			rt.state.Messages = append(rt.state.Messages, outcome.Assistant)
		}
	}

	return rt.finalize(StopReasonMaxTurns)
}

func (rt *taskRuntime) finalize(stopReason string) (*TaskResult, error) {
	if err := rt.acc.flush(rt.ctx); err != nil {
		rt.emit(&TaskErrorEvent{BaseEvent: rt.base(), Err: err})
		return nil, err
	}

	result := &TaskResult{
		Answer:     rt.acc.answer(),
		Turns:      rt.state.Turns,
		Citations:  rt.acc.taskCitations(),
		StopReason: stopReason,
		Duration:   rt.loop.clock.Now().Sub(rt.startTime),
		Usage:      rt.usage,
	}

	rt.emit(&TaskCompletedEvent{
		BaseEvent:  rt.base(),
		Answer:     result.Answer,
		Turns:      result.Turns,
		StopReason: result.StopReason,
		Duration:   result.Duration,
	})

	rt.loop.logger.Info("task finished: turns=%d stop=%s answer_bytes=%d citations=%d",
		result.Turns, result.StopReason, len(result.Answer), len(result.Citations))
	return result, nil
}

// hasActionableResults reports whether any result came from a tool other
// than the status reporter.
func hasActionableResults(results []ports.ToolResult) bool {
	for _, result := range results {
		if result.Name != ToolTaskStatus {
			return true
		}
	}
	return false
}
