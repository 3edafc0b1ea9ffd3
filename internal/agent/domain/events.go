package domain

import (
	"sync/atomic"
	"time"

	"skald/internal/agent/ports"
)

// Re-export the event contracts defined at the port layer.
type Event = ports.Event
type EventListener = ports.EventListener

// seqCounter hands out a monotonic sequence per task run so transports can
// order-check the append-only event stream.
type seqCounter struct {
	n atomic.Int64
}

func (c *seqCounter) next() int64 {
	return c.n.Add(1)
}

// BaseEvent provides the common fields of all events
type BaseEvent struct {
	timestamp time.Time
	chatID    string
	seq       int64
}

func (e *BaseEvent) Timestamp() time.Time { return e.timestamp }
func (e *BaseEvent) GetChatID() string    { return e.chatID }
func (e *BaseEvent) Seq() int64           { return e.seq }

// TaskStartedEvent - emitted once before the first turn
type TaskStartedEvent struct {
	BaseEvent
	Input   string
	ModelID string
}

func (e *TaskStartedEvent) EventType() string { return "task.started" }

// TextDeltaEvent - a streamed assistant content fragment
type TextDeltaEvent struct {
	BaseEvent
	Turn  int
	Delta string
}

func (e *TextDeltaEvent) EventType() string { return "text.delta" }

// ToolStartedEvent - emitted when tool dispatch begins
type ToolStartedEvent struct {
	BaseEvent
	Turn      int
	CallID    string
	ToolName  string
	Arguments map[string]any
}

func (e *ToolStartedEvent) EventType() string { return "tool.started" }

// ToolCompletedEvent - emitted when a tool handler returns
type ToolCompletedEvent struct {
	BaseEvent
	Turn     int
	CallID   string
	ToolName string
	Result   string
	Duration time.Duration
}

func (e *ToolCompletedEvent) EventType() string { return "tool.completed" }

// PlanUpdatedEvent - the agent revised its working plan
type PlanUpdatedEvent struct {
	BaseEvent
	Plan string
}

func (e *PlanUpdatedEvent) EventType() string { return "plan.updated" }

// CitationsUpdatedEvent - the resolved citation set changed
type CitationsUpdatedEvent struct {
	BaseEvent
	Citations []ports.Citation
}

func (e *CitationsUpdatedEvent) EventType() string { return "citations.updated" }

// ChatEntityEvent - a chat entity was finalized and persisted
type ChatEntityEvent struct {
	BaseEvent
	Entity *ports.ChatEntity
}

func (e *ChatEntityEvent) EventType() string { return "chat.entity" }

// TaskCompletedEvent - emitted once after the loop terminates normally
type TaskCompletedEvent struct {
	BaseEvent
	Answer     string
	Turns      int
	StopReason string
	Duration   time.Duration
}

func (e *TaskCompletedEvent) EventType() string { return "task.completed" }

// TaskErrorEvent - emitted when the task aborts
type TaskErrorEvent struct {
	BaseEvent
	Err error
}

func (e *TaskErrorEvent) EventType() string { return "task.error" }
