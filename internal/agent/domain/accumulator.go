package domain

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"skald/internal/agent/ports"
	skalderrors "skald/internal/errors"
)

// turnAccumulator owns the mutable per-request turn state: the streaming chat
// entity, the current text segment, and the running citation set. It is owned
// by the task loop and threaded through the turn executor's callbacks instead
// of being captured by closures.
type turnAccumulator struct {
	tcx      *ports.TurnContext
	resolver *CitationResolver
	listener ports.EventListener
	base     func() BaseEvent
	logger   ports.Logger

	turn         int
	entity       *ports.ChatEntity
	segment      strings.Builder
	finalText    strings.Builder
	citations    []ports.Citation // running set for the current message
	allCitations []ports.Citation // across all messages of this task
}

func newTurnAccumulator(tcx *ports.TurnContext, resolver *CitationResolver, listener ports.EventListener, base func() BaseEvent, logger ports.Logger) *turnAccumulator {
	return &turnAccumulator{
		tcx:      tcx,
		resolver: resolver,
		listener: listener,
		base:     base,
		logger:   orNop(logger),
	}
}

func (a *turnAccumulator) emit(event Event) {
	if a.listener != nil {
		a.listener.OnEvent(event)
	}
}

// onTextDelta accumulates one streamed fragment. The first delta of a segment
// creates the streaming chat entity for that boundary.
func (a *turnAccumulator) onTextDelta(_ context.Context, delta string) error {
	if delta == "" {
		return nil
	}
	if a.entity == nil {
		a.entity = &ports.ChatEntity{
			ID:        uuid.NewString(),
			ChatKey:   a.tcx.ChatKey,
			TeamID:    a.tcx.TeamID,
			MemberID:  a.tcx.MemberID,
			PartnerID: a.tcx.PartnerID,
			Sender:    ports.RoleAssistant,
		}
	}
	a.segment.WriteString(delta)
	a.finalText.WriteString(delta)

	a.emit(&TextDeltaEvent{BaseEvent: a.base(), Turn: a.turn, Delta: delta})
	return nil
}

// onTextEnd finalizes the current text boundary: resolve the segment's
// citations, flip the entity's unread flag, attach the citation payload, and
// persist the entity before the loop may proceed. At most one persist happens
// per logical boundary.
func (a *turnAccumulator) onTextEnd(ctx context.Context) error {
	text := strings.TrimSpace(a.segment.String())
	if text == "" {
		a.segment.Reset()
		return nil
	}
	if a.entity == nil {
		return skalderrors.NewInvariantViolation("text boundary reached with no accumulated entity")
	}

	if _, err := a.RecordText(ctx, text); err != nil {
		return err
	}

	a.entity.Content = text
	a.entity.Unread = true
	if len(a.citations) > 0 {
		payload, err := json.Marshal(a.citations)
		if err != nil {
			return skalderrors.NewInvariantViolation("citation payload not serializable: %v", err)
		}
		a.entity.RefsID = uuid.NewString()
		a.entity.RefsContent = string(payload)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.tcx.Backend.SaveChatEntity(ctx, a.entity); err != nil {
		return err
	}
	a.emit(&ChatEntityEvent{BaseEvent: a.base(), Entity: a.entity})

	// Next segment is a new message boundary.
	a.entity = nil
	a.segment.Reset()
	a.citations = nil
	return nil
}

// RecordText implements ports.CitationRecorder: extract markers from text,
// resolve them, emit citations.updated, and fold the result into the running
// set for the current message.
func (a *turnAccumulator) RecordText(ctx context.Context, text string) ([]ports.Citation, error) {
	raws := ExtractCitations(text)
	if len(raws) == 0 {
		return nil, nil
	}

	resolved, err := a.resolver.Resolve(ctx, raws)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, nil
	}

	a.citations = mergeCitations(a.citations, resolved)
	a.allCitations = mergeCitations(a.allCitations, resolved)
	a.emit(&CitationsUpdatedEvent{BaseEvent: a.base(), Citations: append([]ports.Citation(nil), a.citations...)})
	return resolved, nil
}

// flush finalizes a trailing segment the stream never closed.
func (a *turnAccumulator) flush(ctx context.Context) error {
	if a.entity == nil {
		return nil
	}
	a.logger.Warn("flushing unterminated text segment (%d bytes)", a.segment.Len())
	return a.onTextEnd(ctx)
}

func (a *turnAccumulator) answer() string {
	return strings.TrimSpace(a.finalText.String())
}

func (a *turnAccumulator) taskCitations() []ports.Citation {
	return append([]ports.Citation(nil), a.allCitations...)
}
