package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"skald/internal/agent/ports"
	skalderrors "skald/internal/errors"
	"skald/internal/server/app"
)

// apiResponse is the uniform JSON envelope for non-streaming endpoints.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type answerRequest struct {
	ChatID           string `json:"chat_id"`
	MemberID         string `json:"member_id"`
	Input            string `json:"input"`
	ModelID          string `json:"model_id"`
	Scope            string `json:"scope"`
	CollectionID     string `json:"collection_id"`
	SummaryID        string `json:"summary_id"`
	KnowledgeEnabled bool   `json:"knowledge_enabled"`
}

type answerResponse struct {
	ChatID     string           `json:"chat_id"`
	Answer     string           `json:"answer"`
	Turns      int              `json:"turns"`
	StopReason string           `json:"stop_reason"`
	DurationMS int64            `json:"duration_ms"`
	Citations  []ports.Citation `json:"citations,omitempty"`
}

type answerHandler struct {
	chat *app.ChatService
}

func newAnswerHandler(chat *app.ChatService) *answerHandler {
	return &answerHandler{chat: chat}
}

func (h *answerHandler) handleAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	scope, ok := parseScope(req.Scope)
	if !ok {
		c.JSON(http.StatusBadRequest, apiResponse{Error: "unknown scope: " + req.Scope})
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		c.JSON(http.StatusBadRequest, apiResponse{Error: "input is required"})
		return
	}
	if req.MemberID == "" {
		c.JSON(http.StatusBadRequest, apiResponse{Error: "member_id is required"})
		return
	}

	result, err := h.chat.Answer(c.Request.Context(), app.AnswerRequest{
		ChatID:           req.ChatID,
		MemberID:         req.MemberID,
		Input:            req.Input,
		ModelID:          req.ModelID,
		Scope:            scope,
		CollectionID:     req.CollectionID,
		SummaryID:        req.SummaryID,
		KnowledgeEnabled: req.KnowledgeEnabled,
		AuthToken:        extractBearerToken(c.GetHeader("Authorization")),
	})
	if err != nil {
		c.JSON(skalderrors.HTTPStatusFor(err), apiResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Data: answerResponse{
			ChatID:     result.ChatID,
			Answer:     result.Task.Answer,
			Turns:      result.Task.Turns,
			StopReason: result.Task.StopReason,
			DurationMS: result.Task.Duration.Milliseconds(),
			Citations:  result.Task.Citations,
		},
	})
}

func parseScope(raw string) (ports.Scope, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ports.ScopeGeneral):
		return ports.ScopeGeneral, true
	case string(ports.ScopeCollection):
		return ports.ScopeCollection, true
	case string(ports.ScopeDocument):
		return ports.ScopeDocument, true
	default:
		return "", false
	}
}

func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
