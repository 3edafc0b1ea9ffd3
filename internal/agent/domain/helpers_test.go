package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"skald/internal/agent/ports"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) types() []string {
	var out []string
	for _, e := range r.all() {
		out = append(out, e.EventType())
	}
	return out
}

// scriptedTurn is one model invocation's canned behavior: the deltas to
// stream through the callbacks and the aggregated response to return.
type scriptedTurn struct {
	stream   []ports.ContentDelta
	response ports.CompletionResponse
	err      error
}

type scriptedProvider struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	calls    int
	requests []ports.CompletionRequest
}

func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) StreamComplete(_ context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	p.mu.Lock()
	if p.calls >= len(p.turns) {
		p.mu.Unlock()
		return nil, fmt.Errorf("unexpected model call %d", p.calls+1)
	}
	turn := p.turns[p.calls]
	p.calls++
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if turn.err != nil {
		return nil, turn.err
	}
	for _, delta := range turn.stream {
		if callbacks.OnContentDelta != nil {
			if err := callbacks.OnContentDelta(delta); err != nil {
				return nil, err
			}
		}
	}
	resp := turn.response
	return &resp, nil
}

type fakeBackend struct {
	mu           sync.Mutex
	summaries    map[string]ports.SummaryRecord
	extraRecords []ports.SummaryRecord
	summaryCalls [][]string
	summaryErr   error
	saved        []*ports.ChatEntity
	saveErr      error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{summaries: make(map[string]ports.SummaryRecord)}
}

func (b *fakeBackend) AllocateChatID(context.Context, string) (string, error) {
	return "chat-1", nil
}

func (b *fakeBackend) GetChatContext(context.Context, string) (*ports.ChatContext, error) {
	return &ports.ChatContext{ChatKey: "key-1"}, nil
}

func (b *fakeBackend) GetChatMessages(context.Context, string, int) ([]ports.RawChatMessage, error) {
	return nil, nil
}

func (b *fakeBackend) SaveChatEntity(_ context.Context, entity *ports.ChatEntity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	clone := *entity
	b.saved = append(b.saved, &clone)
	return nil
}

func (b *fakeBackend) GetFile(context.Context, string) (*ports.FileRecord, error) {
	return &ports.FileRecord{}, nil
}

func (b *fakeBackend) ListFiles(context.Context, string) ([]ports.FileRecord, error) {
	return nil, nil
}

func (b *fakeBackend) ListCollectionFiles(context.Context, string) ([]ports.FileRecord, error) {
	return nil, nil
}

func (b *fakeBackend) GetSummariesByIDs(_ context.Context, ids []string) ([]ports.SummaryRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaryCalls = append(b.summaryCalls, append([]string(nil), ids...))
	if b.summaryErr != nil {
		return nil, b.summaryErr
	}
	records := make([]ports.SummaryRecord, 0, len(ids))
	for _, id := range ids {
		if record, ok := b.summaries[id]; ok {
			records = append(records, record)
		}
	}
	return append(records, b.extraRecords...), nil
}

func (b *fakeBackend) GetMemberSummaries(context.Context, string, int, int) ([]ports.SummaryRecord, error) {
	return nil, nil
}

func (b *fakeBackend) SearchKnowledge(context.Context, string, string, int) ([]ports.SearchHit, error) {
	return nil, nil
}

func (b *fakeBackend) SearchDocuments(context.Context, string, string, int) ([]ports.SearchHit, error) {
	return nil, nil
}

func (b *fakeBackend) savedEntities() []*ports.ChatEntity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*ports.ChatEntity(nil), b.saved...)
}

func (b *fakeBackend) summaryCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.summaryCalls)
}

type toolHandlerFunc struct {
	name string
	fn   func(ctx context.Context, call ports.ToolCall, tcx *ports.TurnContext) (string, error)
}

func (h *toolHandlerFunc) Execute(ctx context.Context, call ports.ToolCall, tcx *ports.TurnContext) (string, error) {
	return h.fn(ctx, call, tcx)
}

func (h *toolHandlerFunc) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: h.name, Parameters: ports.ParameterSchema{Type: "object"}}
}

type stubToolRegistry struct {
	mu       sync.Mutex
	handlers map[string]ports.ToolHandler
	executed []string
}

func newStubToolRegistry() *stubToolRegistry {
	return &stubToolRegistry{handlers: make(map[string]ports.ToolHandler)}
}

func (r *stubToolRegistry) Register(handler ports.ToolHandler) error {
	name := handler.Definition().Name
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *stubToolRegistry) Get(name string) (ports.ToolHandler, bool) {
	handler, ok := r.handlers[name]
	return handler, ok
}

func (r *stubToolRegistry) Definitions(names []string) []ports.ToolDefinition {
	defs := make([]ports.ToolDefinition, 0, len(names))
	for _, name := range names {
		if handler, ok := r.handlers[name]; ok {
			defs = append(defs, handler.Definition())
		}
	}
	return defs
}

// addTool registers a handler that records its invocation and returns output.
func (r *stubToolRegistry) addTool(name, output string) {
	_ = r.Register(&toolHandlerFunc{
		name: name,
		fn: func(context.Context, ports.ToolCall, *ports.TurnContext) (string, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.executed = append(r.executed, name)
			return output, nil
		},
	})
}

func (r *stubToolRegistry) executedTools() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.executed...)
}

func newTestTurnContext(backend ports.ProtectedService, provider ports.ModelProvider) *ports.TurnContext {
	cache, _ := lru.New[string, []ports.SummaryRecord](16)
	return &ports.TurnContext{
		RequestID:        "req-1",
		ChatID:           "chat-1",
		ChatKey:          "key-1",
		TeamID:           "team-1",
		MemberID:         "member-1",
		PartnerID:        "partner-1",
		Provider:         provider,
		ModelID:          "test-model",
		SystemPrompt:     "You are a helpful assistant.",
		Scope:            ports.ScopeGeneral,
		KnowledgeEnabled: true,
		Backend:          backend,
		SummaryCache:     cache,
	}
}
