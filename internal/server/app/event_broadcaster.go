// Package app wires the turn-orchestration domain to its infrastructure:
// the chat answering service and the SSE event broadcaster.
package app

import (
	"sync"
	"time"

	"skald/internal/agent/ports"
	"skald/internal/logging"
)

const (
	defaultMaxHistory       = 1000
	criticalDeliveryTimeout = 100 * time.Millisecond
)

// criticalEventTypes must reach clients even under backpressure; the
// broadcaster blocks briefly for them instead of dropping.
var criticalEventTypes = map[string]bool{
	"task.completed": true,
	"task.error":     true,
	"chat.entity":    true,
}

// EventBroadcaster implements ports.EventListener and fans events out to the
// SSE clients subscribed to each chat. Sends never block the task loop: slow
// clients lose non-critical events instead.
type EventBroadcaster struct {
	clients map[string][]chan ports.Event
	mu      sync.RWMutex
	logger  logging.Logger

	history    map[string][]ports.Event
	historyMu  sync.RWMutex
	maxHistory int

	metrics broadcasterMetrics
}

type broadcasterMetrics struct {
	mu            sync.Mutex
	eventsSent    int64
	droppedEvents int64
	activeClients int64
}

// BroadcasterMetrics is a point-in-time snapshot of delivery counters.
type BroadcasterMetrics struct {
	EventsSent    int64
	DroppedEvents int64
	ActiveClients int64
}

// NewEventBroadcaster creates a broadcaster with replay history.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:    make(map[string][]chan ports.Event),
		history:    make(map[string][]ports.Event),
		maxHistory: defaultMaxHistory,
		logger:     logging.NewComponentLogger("EventBroadcaster"),
	}
}

// OnEvent implements ports.EventListener.
func (b *EventBroadcaster) OnEvent(event ports.Event) {
	if event == nil {
		return
	}
	chatID := event.GetChatID()
	if chatID == "" {
		b.logger.Warn("event %s has no chat id, dropping", event.EventType())
		return
	}

	b.storeHistory(chatID, event)

	b.mu.RLock()
	clients := b.clients[chatID]
	b.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	critical := criticalEventTypes[event.EventType()]
	for i, ch := range clients {
		select {
		case ch <- event:
			b.metrics.incrementSent()
		default:
			if critical && b.deliverBlocking(ch, event) {
				continue
			}
			b.logger.Warn("client buffer full for chat %s, dropping %s (client %d/%d)",
				chatID, event.EventType(), i+1, len(clients))
			b.metrics.incrementDropped()
		}
	}
}

// deliverBlocking retries a critical event with a short deadline.
func (b *EventBroadcaster) deliverBlocking(ch chan ports.Event, event ports.Event) bool {
	timer := time.NewTimer(criticalDeliveryTimeout)
	defer timer.Stop()
	select {
	case ch <- event:
		b.metrics.incrementSent()
		return true
	case <-timer.C:
		return false
	}
}

// RegisterClient subscribes a channel to one chat's events.
func (b *EventBroadcaster) RegisterClient(chatID string, ch chan ports.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[chatID] = append(b.clients[chatID], ch)
	b.metrics.adjustActive(1)
	b.logger.Debug("client registered for chat %s (%d total)", chatID, len(b.clients[chatID]))
}

// UnregisterClient removes a subscription. The channel is not closed here;
// the subscriber owns it.
func (b *EventBroadcaster) UnregisterClient(chatID string, ch chan ports.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clients := b.clients[chatID]
	for i, candidate := range clients {
		if candidate == ch {
			b.clients[chatID] = append(clients[:i], clients[i+1:]...)
			b.metrics.adjustActive(-1)
			break
		}
	}
	if len(b.clients[chatID]) == 0 {
		delete(b.clients, chatID)
	}
}

// ClientCount reports the subscribers of one chat.
func (b *EventBroadcaster) ClientCount(chatID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[chatID])
}

// EventHistory returns a copy of a chat's stored events for replay.
func (b *EventBroadcaster) EventHistory(chatID string) []ports.Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()
	return append([]ports.Event(nil), b.history[chatID]...)
}

// ClearEventHistory drops a chat's replay buffer.
func (b *EventBroadcaster) ClearEventHistory(chatID string) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	delete(b.history, chatID)
}

// Metrics returns a snapshot of delivery counters.
func (b *EventBroadcaster) Metrics() BroadcasterMetrics {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return BroadcasterMetrics{
		EventsSent:    b.metrics.eventsSent,
		DroppedEvents: b.metrics.droppedEvents,
		ActiveClients: b.metrics.activeClients,
	}
}

func (b *EventBroadcaster) storeHistory(chatID string, event ports.Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	events := append(b.history[chatID], event)
	if len(events) > b.maxHistory {
		events = events[len(events)-b.maxHistory:]
	}
	b.history[chatID] = events
}

func (m *broadcasterMetrics) incrementSent() {
	m.mu.Lock()
	m.eventsSent++
	m.mu.Unlock()
}

func (m *broadcasterMetrics) incrementDropped() {
	m.mu.Lock()
	m.droppedEvents++
	m.mu.Unlock()
}

func (m *broadcasterMetrics) adjustActive(delta int64) {
	m.mu.Lock()
	m.activeClients += delta
	m.mu.Unlock()
}
