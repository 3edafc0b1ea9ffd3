// Package observability provides the service's metrics collector and
// distributed tracing bootstrap.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MetricsCollector manages all metrics for the answering service. A disabled
// collector is a usable no-op.
type MetricsCollector struct {
	meter metric.Meter

	tasksStarted   metric.Int64Counter
	tasksCompleted metric.Int64Counter
	tasksFailed    metric.Int64Counter
	taskDuration   metric.Float64Histogram
	taskTurns      metric.Int64Histogram

	modelRequests metric.Int64Counter
	modelLatency  metric.Float64Histogram
	tokensInput   metric.Int64Counter
	tokensOutput  metric.Int64Counter

	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	citationsResolved metric.Int64Counter
	entitiesPersisted metric.Int64Counter
	streamClients     metric.Int64UpDownCounter
}

// NewMetricsCollector creates the collector and installs the Prometheus
// exporter as the global meter provider.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("skald")
	c := &MetricsCollector{meter: meter}

	if c.tasksStarted, err = meter.Int64Counter(
		"skald.tasks.started.total",
		metric.WithDescription("Answering tasks started"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tasks_started counter: %w", err)
	}
	if c.tasksCompleted, err = meter.Int64Counter(
		"skald.tasks.completed.total",
		metric.WithDescription("Answering tasks finished"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tasks_completed counter: %w", err)
	}
	if c.tasksFailed, err = meter.Int64Counter(
		"skald.tasks.failed.total",
		metric.WithDescription("Answering tasks aborted by an error"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tasks_failed counter: %w", err)
	}
	if c.taskDuration, err = meter.Float64Histogram(
		"skald.task.duration",
		metric.WithDescription("Wall time per answering task"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create task_duration histogram: %w", err)
	}
	if c.taskTurns, err = meter.Int64Histogram(
		"skald.task.turns",
		metric.WithDescription("Model invocations per answering task"),
		metric.WithUnit("{turn}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create task_turns histogram: %w", err)
	}
	if c.modelRequests, err = meter.Int64Counter(
		"skald.model.requests.total",
		metric.WithDescription("Model invocations"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create model_requests counter: %w", err)
	}
	if c.modelLatency, err = meter.Float64Histogram(
		"skald.model.latency",
		metric.WithDescription("Model invocation latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create model_latency histogram: %w", err)
	}
	if c.tokensInput, err = meter.Int64Counter(
		"skald.model.tokens.input",
		metric.WithDescription("Prompt tokens sent to the model"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tokens_input counter: %w", err)
	}
	if c.tokensOutput, err = meter.Int64Counter(
		"skald.model.tokens.output",
		metric.WithDescription("Completion tokens received from the model"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tokens_output counter: %w", err)
	}
	if c.toolExecutions, err = meter.Int64Counter(
		"skald.tool.executions.total",
		metric.WithDescription("Tool handler executions"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool_executions counter: %w", err)
	}
	if c.toolDuration, err = meter.Float64Histogram(
		"skald.tool.duration",
		metric.WithDescription("Tool handler execution duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool_duration histogram: %w", err)
	}
	if c.citationsResolved, err = meter.Int64Counter(
		"skald.citations.resolved.total",
		metric.WithDescription("Citations resolved against the protected service"),
		metric.WithUnit("{citation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create citations_resolved counter: %w", err)
	}
	if c.entitiesPersisted, err = meter.Int64Counter(
		"skald.chat.entities.persisted.total",
		metric.WithDescription("Chat entities written to the protected service"),
		metric.WithUnit("{entity}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create entities_persisted counter: %w", err)
	}
	if c.streamClients, err = meter.Int64UpDownCounter(
		"skald.stream.clients",
		metric.WithDescription("Connected event stream clients"),
		metric.WithUnit("{client}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create stream_clients gauge: %w", err)
	}

	return c, nil
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsCollector) Handler() http.Handler {
	return promclient.Handler()
}

// RecordTaskStarted records the start of one answering task.
func (m *MetricsCollector) RecordTaskStarted(ctx context.Context, model string) {
	if m.tasksStarted == nil {
		return
	}
	m.tasksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

// RecordTaskCompleted records one finished task.
func (m *MetricsCollector) RecordTaskCompleted(ctx context.Context, stopReason string, turns int, duration time.Duration) {
	if m.tasksCompleted == nil {
		return
	}
	m.tasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("stop_reason", stopReason)))
	m.taskTurns.Record(ctx, int64(turns))
	m.taskDuration.Record(ctx, duration.Seconds())
}

// RecordTaskFailed records one aborted task.
func (m *MetricsCollector) RecordTaskFailed(ctx context.Context) {
	if m.tasksFailed == nil {
		return
	}
	m.tasksFailed.Add(ctx, 1)
}

// RecordModelRequest records one model invocation.
func (m *MetricsCollector) RecordModelRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m.modelRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	m.modelRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.modelLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
	m.tokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.tokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
}

// RecordToolExecution records one tool handler execution.
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolExecutions == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool", toolName),
		attribute.String("status", status),
	}
	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCitationsResolved counts resolved citations.
func (m *MetricsCollector) RecordCitationsResolved(ctx context.Context, count int) {
	if m.citationsResolved == nil || count <= 0 {
		return
	}
	m.citationsResolved.Add(ctx, int64(count))
}

// RecordEntityPersisted counts one saved chat entity.
func (m *MetricsCollector) RecordEntityPersisted(ctx context.Context) {
	if m.entitiesPersisted == nil {
		return
	}
	m.entitiesPersisted.Add(ctx, 1)
}

// StreamClientConnected adjusts the connected client gauge.
func (m *MetricsCollector) StreamClientConnected(ctx context.Context, delta int64) {
	if m.streamClients == nil {
		return
	}
	m.streamClients.Add(ctx, delta)
}
