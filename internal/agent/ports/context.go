package ports

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Scope is the breadth of data the agent may access this conversation.
type Scope string

const (
	ScopeGeneral    Scope = "general"
	ScopeCollection Scope = "collection"
	ScopeDocument   Scope = "document"
)

// Logger defines a minimal, printf-style logging contract for the domain
// layer, satisfied by internal/logging.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// TurnContext is the immutable per-request configuration. Built once per
// request, read-only thereafter; the summary cache it carries is request
// scoped and dropped at request end.
type TurnContext struct {
	RequestID string
	ChatID    string
	ChatKey   string
	TeamID    string
	MemberID  string
	PartnerID string

	Provider     ModelProvider
	ProviderID   string
	ModelID      string
	SystemPrompt string
	EnvContext   string

	Scope            Scope
	CollectionID     string
	SummaryID        string
	AuthToken        string
	KnowledgeEnabled bool

	Backend      ProtectedService
	SummaryCache *lru.Cache[string, []SummaryRecord]

	// Citations is the task loop's citation pipeline, exposed to tool
	// handlers (update_citations).
	Citations CitationRecorder

	// Events receives progress notifications from tool handlers.
	Events EventListener

	Logger Logger
}
