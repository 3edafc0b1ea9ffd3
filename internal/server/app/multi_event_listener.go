package app

import (
	"context"

	"skald/internal/agent/domain"
	"skald/internal/agent/ports"
	"skald/internal/observability"
)

// MultiEventListener fans one event out to several listeners in order.
type MultiEventListener struct {
	listeners []ports.EventListener
}

// NewMultiEventListener combines listeners; nils are skipped.
func NewMultiEventListener(listeners ...ports.EventListener) *MultiEventListener {
	kept := make([]ports.EventListener, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			kept = append(kept, l)
		}
	}
	return &MultiEventListener{listeners: kept}
}

func (m *MultiEventListener) OnEvent(event ports.Event) {
	for _, l := range m.listeners {
		l.OnEvent(event)
	}
}

// MetricsEventListener translates task events into metrics observations.
type MetricsEventListener struct {
	metrics *observability.MetricsCollector
}

// NewMetricsEventListener wraps a collector as an event listener.
func NewMetricsEventListener(metrics *observability.MetricsCollector) *MetricsEventListener {
	return &MetricsEventListener{metrics: metrics}
}

func (m *MetricsEventListener) OnEvent(event ports.Event) {
	if m.metrics == nil {
		return
	}
	ctx := context.Background()
	switch e := event.(type) {
	case *domain.ToolCompletedEvent:
		m.metrics.RecordToolExecution(ctx, e.ToolName, "ok", e.Duration)
	case *domain.CitationsUpdatedEvent:
		m.metrics.RecordCitationsResolved(ctx, len(e.Citations))
	case *domain.ChatEntityEvent:
		m.metrics.RecordEntityPersisted(ctx)
	}
}
