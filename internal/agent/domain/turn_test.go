package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skald/internal/agent/ports"
)

type turnFixture struct {
	executor *TurnExecutor
	registry *stubToolRegistry
	provider *scriptedProvider
	tcx      *ports.TurnContext
	recorder *eventRecorder
	clock    *testClock
}

func newTurnFixture(turns ...scriptedTurn) *turnFixture {
	registry := newStubToolRegistry()
	provider := &scriptedProvider{turns: turns}
	clock := newTestClock()
	return &turnFixture{
		executor: NewTurnExecutor(registry, nil, clock),
		registry: registry,
		provider: provider,
		tcx:      newTestTurnContext(newFakeBackend(), provider),
		recorder: &eventRecorder{},
		clock:    clock,
	}
}

func (f *turnFixture) execute(t *testing.T, callbacks TurnCallbacks) *TurnOutcome {
	t.Helper()
	var seq seqCounter
	base := func() BaseEvent {
		return BaseEvent{timestamp: f.clock.Now(), chatID: f.tcx.ChatID, seq: seq.next()}
	}
	outcome, err := f.executor.ExecuteTurn(context.Background(), f.tcx, nil, 1, callbacks, f.recorder.OnEvent, base)
	require.NoError(t, err)
	return outcome
}

func TestExecuteTurnStreamsBeforeDispatch(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		stream: []ports.ContentDelta{
			{Delta: "Hel"},
			{Delta: "lo"},
			{Final: true},
		},
		response: ports.CompletionResponse{
			Content:      "Hello",
			ToolCalls:    []ports.ToolCall{{ID: "t1", Name: ToolSearchKnowledge, Arguments: map[string]any{"query": "q"}}},
			FinishReason: "tool_calls",
		},
	})
	f.registry.addTool(ToolSearchKnowledge, "hits")

	var mu sync.Mutex
	var order []string
	record := func(step string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, step)
	}

	outcome := f.execute(t, TurnCallbacks{
		OnTextDelta: func(_ context.Context, delta string) error {
			record("delta:" + delta)
			return nil
		},
		OnTextEnd: func(context.Context) error {
			record("end")
			return nil
		},
	})

	require.Equal(t, []string{"delta:Hel", "delta:lo", "end"}, order)
	require.Equal(t, []string{ToolSearchKnowledge}, f.registry.executedTools())
	require.Len(t, outcome.Results, 1)
	require.Equal(t, "hits", outcome.Results[0].Content)
	require.Equal(t, []string{"tool.started", "tool.completed"}, f.recorder.types())
	require.False(t, outcome.Completed)
}

func TestExecuteTurnCarriesModelUsage(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		response: ports.CompletionResponse{
			Content:      "hi",
			FinishReason: "stop",
			Usage:        ports.TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
		},
	})

	outcome := f.execute(t, TurnCallbacks{})

	require.Equal(t, ports.TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, outcome.Usage)
	require.Greater(t, outcome.ModelLatency, time.Duration(0))
}

func TestExecuteTurnDispatchesSequentiallyInModelOrder(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		response: ports.CompletionResponse{
			ToolCalls: []ports.ToolCall{
				{ID: "t1", Name: ToolListAllFiles},
				{ID: "t2", Name: ToolReadFile},
				{ID: "t3", Name: ToolSearchDocuments},
			},
			FinishReason: "tool_calls",
		},
	})
	f.registry.addTool(ToolListAllFiles, "files")
	f.registry.addTool(ToolReadFile, "content")
	f.registry.addTool(ToolSearchDocuments, "hits")

	outcome := f.execute(t, TurnCallbacks{})

	require.Equal(t, []string{ToolListAllFiles, ToolReadFile, ToolSearchDocuments}, f.registry.executedTools())
	require.Len(t, outcome.Results, 3)
	require.Equal(t, "t1", outcome.Results[0].CallID)
	require.Equal(t, "t3", outcome.Results[2].CallID)
	require.Len(t, outcome.ToolMessages, 3)
	require.Equal(t, ports.RoleTool, outcome.ToolMessages[0].Role)
	require.Equal(t, "t1", outcome.ToolMessages[0].ToolCallID)
}

func TestExecuteTurnSkipsDisallowedAndUnknownTools(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		response: ports.CompletionResponse{
			ToolCalls: []ports.ToolCall{
				{ID: "t1", Name: "made_up_tool"},
				{ID: "t2", Name: ToolReadFile}, // allowed but unregistered
				{ID: "t3", Name: ToolUpdatePlan},
			},
			FinishReason: "tool_calls",
		},
	})
	f.registry.addTool(ToolUpdatePlan, "plan saved")

	outcome := f.execute(t, TurnCallbacks{})

	require.Equal(t, []string{ToolUpdatePlan}, f.registry.executedTools())
	require.Len(t, outcome.Results, 1)
	require.Equal(t, "t3", outcome.Results[0].CallID)
}

func TestExecuteTurnScopeRestrictsTools(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		response: ports.CompletionResponse{
			ToolCalls: []ports.ToolCall{
				{ID: "t1", Name: ToolListAllFiles},
				{ID: "t2", Name: ToolReadFile},
			},
			FinishReason: "tool_calls",
		},
	})
	f.registry.addTool(ToolListAllFiles, "files")
	f.registry.addTool(ToolReadFile, "content")
	f.tcx.Scope = ports.ScopeDocument
	f.tcx.SummaryID = "sum-1"

	outcome := f.execute(t, TurnCallbacks{})

	// Document scope never sees the listing tool.
	require.Equal(t, []string{ToolReadFile}, f.registry.executedTools())
	require.Len(t, outcome.Results, 1)
}

func TestExecuteTurnCompletionShortCircuits(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		response: ports.CompletionResponse{
			ToolCalls: []ports.ToolCall{
				{ID: "t1", Name: ToolTaskStatus, Arguments: map[string]any{"status": "complete"}},
				{ID: "t2", Name: ToolReadFile},
			},
			FinishReason: "tool_calls",
		},
	})
	f.registry.addTool(ToolTaskStatus, "ok")
	f.registry.addTool(ToolReadFile, "content")

	outcome := f.execute(t, TurnCallbacks{})

	require.True(t, outcome.Completed)
	require.Equal(t, []string{ToolTaskStatus}, f.registry.executedTools())
	require.Len(t, outcome.Results, 1)
}

func TestExecuteTurnIncompleteStatusDoesNotComplete(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		response: ports.CompletionResponse{
			ToolCalls: []ports.ToolCall{
				{ID: "t1", Name: ToolTaskStatus, Arguments: map[string]any{"status": "in_progress"}},
			},
			FinishReason: "tool_calls",
		},
	})
	f.registry.addTool(ToolTaskStatus, "ok")

	outcome := f.execute(t, TurnCallbacks{})

	require.False(t, outcome.Completed)
	require.Len(t, outcome.Results, 1)
}

func TestExecuteTurnHandlerErrorAbortsTurn(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		response: ports.CompletionResponse{
			ToolCalls: []ports.ToolCall{
				{ID: "t1", Name: ToolReadFile},
				{ID: "t2", Name: ToolUpdatePlan},
			},
			FinishReason: "tool_calls",
		},
	})
	require.NoError(t, f.registry.Register(&toolHandlerFunc{
		name: ToolReadFile,
		fn: func(context.Context, ports.ToolCall, *ports.TurnContext) (string, error) {
			return "", errors.New("file missing")
		},
	}))
	f.registry.addTool(ToolUpdatePlan, "plan saved")

	var seq seqCounter
	base := func() BaseEvent { return BaseEvent{seq: seq.next()} }
	_, err := f.executor.ExecuteTurn(context.Background(), f.tcx, nil, 1, TurnCallbacks{}, f.recorder.OnEvent, base)

	require.ErrorContains(t, err, "read_file")
	require.ErrorContains(t, err, "file missing")
	require.Empty(t, f.registry.executedTools())
}

func TestExecuteTurnPrependsSystemAndEnvContext(t *testing.T) {
	f := newTurnFixture(scriptedTurn{
		response: ports.CompletionResponse{Content: "hi", FinishReason: "stop"},
	})
	f.tcx.EnvContext = "env fragment"

	history := []ports.Message{{Role: ports.RoleUser, Content: "question"}}
	var seq seqCounter
	base := func() BaseEvent { return BaseEvent{seq: seq.next()} }
	_, err := f.executor.ExecuteTurn(context.Background(), f.tcx, history, 1, TurnCallbacks{}, f.recorder.OnEvent, base)
	require.NoError(t, err)

	require.Len(t, f.provider.requests, 1)
	msgs := f.provider.requests[0].Messages
	require.Len(t, msgs, 3)
	require.Equal(t, ports.RoleSystem, msgs[0].Role)
	require.Equal(t, f.tcx.SystemPrompt, msgs[0].Content)
	require.Equal(t, "env fragment", msgs[1].Content)
	require.Equal(t, "question", msgs[2].Content)
}

func TestExecuteTurnModelErrorPropagates(t *testing.T) {
	f := newTurnFixture(scriptedTurn{err: errors.New("upstream 500")})

	var seq seqCounter
	base := func() BaseEvent { return BaseEvent{seq: seq.next()} }
	_, err := f.executor.ExecuteTurn(context.Background(), f.tcx, nil, 1, TurnCallbacks{}, f.recorder.OnEvent, base)

	require.ErrorContains(t, err, "model call failed")
	require.ErrorContains(t, err, "upstream 500")
}
