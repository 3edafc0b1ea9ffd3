package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"skald/internal/agent/domain"
	"skald/internal/agent/ports"
	"skald/internal/logging"
	"skald/internal/observability"
	"skald/internal/server/app"
)

const (
	sseClientBuffer   = 100
	heartbeatInterval = 30 * time.Second
)

// sseHandler streams task events for one chat over Server-Sent Events.
type sseHandler struct {
	broadcaster *app.EventBroadcaster
	metrics     *observability.MetricsCollector
	logger      logging.Logger
}

func newSSEHandler(broadcaster *app.EventBroadcaster, metrics *observability.MetricsCollector) *sseHandler {
	return &sseHandler{
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logging.NewComponentLogger("SSEHandler"),
	}
}

func (h *sseHandler) handleStream(c *gin.Context) {
	chatID := c.Param("chat_id")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, apiResponse{Error: "chat_id is required"})
		return
	}

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, apiResponse{Error: "streaming unsupported"})
		return
	}

	ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanSSEConnection,
		attribute.String(observability.AttrChatID, chatID),
	)
	defer span.End()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientChan := make(chan ports.Event, sseClientBuffer)
	h.broadcaster.RegisterClient(chatID, clientChan)
	defer h.broadcaster.UnregisterClient(chatID, clientChan)

	if h.metrics != nil {
		h.metrics.StreamClientConnected(ctx, 1)
		defer h.metrics.StreamClientConnected(ctx, -1)
	}

	h.logger.Info("SSE client connected for chat %s", chatID)

	fmt.Fprintf(w, "event: connected\ndata: {\"chat_id\":%q}\n\n", chatID)
	flusher.Flush()

	sender := newSSESender(w, flusher)

	// Replay events the client missed before subscribing.
	for _, event := range h.broadcaster.EventHistory(chatID) {
		if err := sender.Send(ctx, event); err != nil {
			h.logger.Error("replay to chat %s client failed: %v", chatID, err)
		}
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-clientChan:
			if err := sender.Send(ctx, event); err != nil {
				h.logger.Error("send to chat %s client failed: %v", chatID, err)
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-ctx.Done():
			h.logger.Info("SSE client disconnected from chat %s", chatID)
			return
		}
	}
}

// sseSender delivers events to one connected client in SSE wire format. It
// satisfies ports.EventSender: delivery is best effort and a cancelled
// connection context fails fast instead of writing to a dead socket.
type sseSender struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var _ ports.EventSender = (*sseSender)(nil)

func newSSESender(w http.ResponseWriter, flusher http.Flusher) *sseSender {
	return &sseSender{w: w, flusher: flusher}
}

func (s *sseSender) Send(ctx context.Context, event ports.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := serializeEvent(event)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", event.EventType(), err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.EventType(), data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// serializeEvent flattens a typed event into the wire JSON shape.
func serializeEvent(event ports.Event) ([]byte, error) {
	payload := map[string]any{
		"event_type": event.EventType(),
		"timestamp":  event.Timestamp().Format(time.RFC3339Nano),
		"chat_id":    event.GetChatID(),
		"seq":        event.Seq(),
	}

	switch e := event.(type) {
	case *domain.TaskStartedEvent:
		payload["input"] = e.Input
		payload["model_id"] = e.ModelID

	case *domain.TextDeltaEvent:
		payload["turn"] = e.Turn
		payload["delta"] = e.Delta

	case *domain.ToolStartedEvent:
		payload["turn"] = e.Turn
		payload["call_id"] = e.CallID
		payload["tool_name"] = e.ToolName
		if len(e.Arguments) > 0 {
			payload["arguments"] = e.Arguments
		}

	case *domain.ToolCompletedEvent:
		payload["turn"] = e.Turn
		payload["call_id"] = e.CallID
		payload["tool_name"] = e.ToolName
		payload["result"] = e.Result
		payload["duration_ms"] = e.Duration.Milliseconds()

	case *domain.PlanUpdatedEvent:
		payload["plan"] = e.Plan

	case *domain.CitationsUpdatedEvent:
		payload["citations"] = e.Citations

	case *domain.ChatEntityEvent:
		payload["entity"] = e.Entity

	case *domain.TaskCompletedEvent:
		payload["answer"] = e.Answer
		payload["turns"] = e.Turns
		payload["stop_reason"] = e.StopReason
		payload["duration_ms"] = e.Duration.Milliseconds()

	case *domain.TaskErrorEvent:
		if e.Err != nil {
			payload["error"] = e.Err.Error()
		}
	}

	return json.Marshal(payload)
}
