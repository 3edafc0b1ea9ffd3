package ports

import (
	"context"
	"time"
)

// Event represents a progress notification emitted during task execution.
// It mirrors the contract implemented by the domain layer events.
type Event interface {
	EventType() string
	Timestamp() time.Time
	GetChatID() string
	Seq() int64
}

// EventListener consumes task events (used by streaming layers)
type EventListener interface {
	OnEvent(event Event)
}

// EventSender delivers events to an external transport. Delivery is best
// effort: the core never assumes a send succeeded and must not block
// indefinitely on one.
type EventSender interface {
	Send(ctx context.Context, event Event) error
}
