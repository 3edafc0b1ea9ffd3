package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"skald/internal/agent/domain"
	"skald/internal/agent/ports"
	"skald/internal/llm"
	"skald/internal/logging"
	"skald/internal/observability"
	"skald/internal/protected"
)

const defaultSystemPrompt = `You are a careful assistant answering questions about the member's documents and knowledge.
Ground every claim in retrieved content and cite sources inline using markers of the form [c1]: TYPE/ID,
where TYPE and ID come from the summary records you read. If the available material does not answer the
question, say so plainly. Keep answers concise and structured.`

const (
	defaultHistoryLimit     = 40
	defaultHistoryMaxTokens = 6000
	summaryCacheSize        = 64
)

// ChatServiceConfig tunes the answering pipeline.
type ChatServiceConfig struct {
	SystemPrompt     string
	MaxTurns         int
	HistoryLimit     int
	HistoryMaxTokens int
}

// AnswerRequest is one incoming question.
type AnswerRequest struct {
	ChatID           string
	MemberID         string
	Input            string
	ModelID          string
	Scope            ports.Scope
	CollectionID     string
	SummaryID        string
	KnowledgeEnabled bool
	AuthToken        string
}

// AnswerResult pairs the task outcome with the chat it ran in.
type AnswerResult struct {
	ChatID string
	Task   *domain.TaskResult
}

// ChatService runs the full answering pipeline for one question: load chat
// state from the protected service, run the task loop, and hand events to
// the broadcaster as they happen.
type ChatService struct {
	backend  *protected.Client
	models   *llm.Registry
	registry ports.ToolRegistry
	listener ports.EventListener
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	logger   logging.Logger
	cfg      ChatServiceConfig
}

// NewChatService wires the answering pipeline.
func NewChatService(
	backend *protected.Client,
	models *llm.Registry,
	registry ports.ToolRegistry,
	listener ports.EventListener,
	metrics *observability.MetricsCollector,
	tracer *observability.TracerProvider,
	cfg ChatServiceConfig,
) *ChatService {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.HistoryMaxTokens <= 0 {
		cfg.HistoryMaxTokens = defaultHistoryMaxTokens
	}
	return &ChatService{
		backend:  backend,
		models:   models,
		registry: registry,
		listener: listener,
		metrics:  metrics,
		tracer:   tracer,
		logger:   logging.NewComponentLogger("ChatService"),
		cfg:      cfg,
	}
}

// Answer handles one question end to end. Events stream through the
// configured listener while this call is in flight; the returned result is
// the task's terminal outcome.
func (s *ChatService) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return nil, fmt.Errorf("input is empty")
	}
	if req.MemberID == "" {
		return nil, fmt.Errorf("member id is required")
	}

	requestID := uuid.NewString()
	ctx = protected.WithRequestID(ctx, requestID)
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanChatAnswer,
		attribute.String(observability.AttrRequestID, requestID),
		attribute.String(observability.AttrMemberID, req.MemberID),
		attribute.String(observability.AttrScope, string(req.Scope)),
	)
	defer span.End()

	backend := s.backend
	if req.AuthToken != "" {
		backend = backend.WithToken(req.AuthToken)
	}

	chatID, chatCtx, history, err := s.loadChatState(ctx, backend, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String(observability.AttrChatID, chatID))

	modelID := req.ModelID
	if modelID == "" {
		modelID = chatCtx.ModelID
	}
	provider, providerID, err := s.models.ProviderFor(modelID)
	if err != nil {
		return nil, err
	}
	modelID = provider.Model()

	cache, err := lru.New[string, []ports.SummaryRecord](summaryCacheSize)
	if err != nil {
		return nil, err
	}

	tcx := &ports.TurnContext{
		RequestID:        requestID,
		ChatID:           chatID,
		ChatKey:          chatCtx.ChatKey,
		TeamID:           chatCtx.TeamID,
		MemberID:         req.MemberID,
		PartnerID:        chatCtx.PartnerID,
		Provider:         provider,
		ProviderID:       providerID,
		ModelID:          modelID,
		SystemPrompt:     s.cfg.SystemPrompt,
		EnvContext:       domain.BuildEnvironmentContext(req.Scope, req.KnowledgeEnabled, req.SummaryID, req.CollectionID),
		Scope:            req.Scope,
		CollectionID:     req.CollectionID,
		SummaryID:        req.SummaryID,
		AuthToken:        req.AuthToken,
		KnowledgeEnabled: req.KnowledgeEnabled,
		Backend:          backend,
		SummaryCache:     cache,
		Logger:           s.logger,
	}

	// The member's question is persisted before generation starts, so the
	// message log is consistent even if the task fails.
	if err := s.persistUserMessage(ctx, backend, tcx, input); err != nil {
		return nil, err
	}

	loop := domain.NewTaskLoop(domain.TaskLoopConfig{
		Executor: domain.NewTurnExecutor(s.registry, s.logger, nil),
		Listener: s.listener,
		Logger:   s.logger,
		MaxTurns: s.cfg.MaxTurns,
		OnModelCall: func(usage ports.TokenUsage, latency time.Duration) {
			s.metrics.RecordModelRequest(ctx, modelID, "ok", latency, usage.PromptTokens, usage.CompletionTokens)
		},
	})

	s.metrics.RecordTaskStarted(ctx, modelID)
	started := time.Now()
	s.logger.Info("task start: request=%s chat=%s member=%s model=%s scope=%s",
		requestID, chatID, req.MemberID, modelID, req.Scope)

	result, err := loop.Run(ctx, tcx, history, input)
	if err != nil {
		s.metrics.RecordTaskFailed(ctx)
		s.metrics.RecordModelRequest(ctx, modelID, "error", time.Since(started), 0, 0)
		s.logger.Error("task failed: request=%s chat=%s: %v", requestID, chatID, err)
		return nil, err
	}

	s.metrics.RecordTaskCompleted(ctx, result.StopReason, result.Turns, result.Duration)
	span.SetAttributes(
		attribute.String(observability.AttrStopReason, result.StopReason),
		attribute.Int(observability.AttrTurns, result.Turns),
	)
	return &AnswerResult{ChatID: chatID, Task: result}, nil
}

// loadChatState allocates or loads the chat, fetching context and history
// concurrently. Both reads must succeed before any generation starts.
func (s *ChatService) loadChatState(ctx context.Context, backend *protected.Client, req AnswerRequest) (string, *ports.ChatContext, []ports.Message, error) {
	if req.ChatID == "" {
		chatID, err := backend.AllocateChatID(ctx, req.MemberID)
		if err != nil {
			return "", nil, nil, err
		}
		chatCtx, err := backend.GetChatContext(ctx, chatID)
		if err != nil {
			return "", nil, nil, err
		}
		return chatID, chatCtx, nil, nil
	}

	var (
		chatCtx *ports.ChatContext
		raw     []ports.RawChatMessage
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		chatCtx, err = backend.GetChatContext(groupCtx, req.ChatID)
		return err
	})
	group.Go(func() error {
		var err error
		raw, err = backend.GetChatMessages(groupCtx, req.ChatID, s.cfg.HistoryLimit)
		return err
	})
	if err := group.Wait(); err != nil {
		return "", nil, nil, err
	}

	history := domain.TruncateHistory(domain.NormalizeHistory(raw), s.cfg.HistoryMaxTokens)
	return req.ChatID, chatCtx, history, nil
}

func (s *ChatService) persistUserMessage(ctx context.Context, backend *protected.Client, tcx *ports.TurnContext, input string) error {
	entity := &ports.ChatEntity{
		ID:        uuid.NewString(),
		ChatKey:   tcx.ChatKey,
		TeamID:    tcx.TeamID,
		MemberID:  tcx.MemberID,
		PartnerID: tcx.PartnerID,
		Sender:    ports.RoleUser,
		Content:   input,
	}
	if err := backend.SaveChatEntity(ctx, entity); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	s.metrics.RecordEntityPersisted(ctx)
	return nil
}
