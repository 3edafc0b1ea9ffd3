package ports

import (
	"context"
	"time"
)

// RawChatMessage is one entry of the backend-retrieved message log, before
// normalization. SenderType is matched case-insensitively; anything other
// than "user" (including empty) maps to the assistant role.
type RawChatMessage struct {
	Text       string    `json:"text"`
	SenderType string    `json:"sender_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChatContext carries the member/partner/model metadata the backend holds for
// one chat.
type ChatContext struct {
	ChatKey   string `json:"chat_key"`
	TeamID    string `json:"team_id"`
	MemberID  string `json:"member_id"`
	PartnerID string `json:"partner_id"`
	ModelID   string `json:"model_id"`
}

// ChatEntity is the persisted representation of one exchanged message. It is
// mutated in place while streaming and finalized once generation for its
// boundary stops; it is sent to the backend at most once per logical boundary.
type ChatEntity struct {
	ID          string `json:"id"`
	ChatKey     string `json:"chat_key"`
	TeamID      string `json:"team_id"`
	MemberID    string `json:"member_id"`
	PartnerID   string `json:"partner_id"`
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	Unread      bool   `json:"unread"`
	Deleted     bool   `json:"deleted"`
	Collapsed   bool   `json:"collapsed"`
	RefsID      string `json:"refs_id,omitempty"`
	RefsContent string `json:"refs_content,omitempty"`
}

// SummaryRecord is a backend record representing a document's extracted
// content, fetchable by id.
type SummaryRecord struct {
	ID      string `json:"id"`
	FileID  string `json:"file_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    int    `json:"type"`
}

// FileRecord is backend file metadata.
type FileRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CollectionID string `json:"collection_id,omitempty"`
	SummaryID    string `json:"summary_id,omitempty"`
}

// SearchHit is one result of a knowledge or document search.
type SearchHit struct {
	SummaryID string  `json:"summary_id"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

// ProtectedService is the backend REST API owning chat, file, and summary
// data. Implementations live outside the core; the core consumes only the
// fields declared here.
type ProtectedService interface {
	// AllocateChatID reserves a new chat id.
	AllocateChatID(ctx context.Context, memberID string) (string, error)

	// GetChatContext fetches member/partner/model metadata for a chat.
	GetChatContext(ctx context.Context, chatID string) (*ChatContext, error)

	// GetChatMessages fetches the chronologically ordered message log.
	GetChatMessages(ctx context.Context, chatID string, limit int) ([]RawChatMessage, error)

	// SaveChatEntity persists one exchanged message.
	SaveChatEntity(ctx context.Context, entity *ChatEntity) error

	// GetFile fetches metadata and detail for one file.
	GetFile(ctx context.Context, fileID string) (*FileRecord, error)

	// ListFiles lists all files visible to a member.
	ListFiles(ctx context.Context, memberID string) ([]FileRecord, error)

	// ListCollectionFiles lists the files of one collection.
	ListCollectionFiles(ctx context.Context, collectionID string) ([]FileRecord, error)

	// GetSummariesByIDs batch-fetches full source records.
	GetSummariesByIDs(ctx context.Context, ids []string) ([]SummaryRecord, error)

	// GetMemberSummaries pages through a member's summaries.
	GetMemberSummaries(ctx context.Context, memberID string, page, size int) ([]SummaryRecord, error)

	// SearchKnowledge searches the member's whole knowledge base.
	SearchKnowledge(ctx context.Context, memberID, query string, limit int) ([]SearchHit, error)

	// SearchDocuments searches within a collection or a single document.
	SearchDocuments(ctx context.Context, scopeID, query string, limit int) ([]SearchHit, error)
}
