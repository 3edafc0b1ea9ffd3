package protected

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"skald/internal/agent/ports"
	skalderrors "skald/internal/errors"
)

// AllocateChatID reserves a new chat id for the member.
func (c *Client) AllocateChatID(ctx context.Context, memberID string) (string, error) {
	var data struct {
		ChatID string `json:"chat_id"`
	}
	body := map[string]string{"member_id": memberID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/chats/allocate", nil, body, &data); err != nil {
		return "", err
	}
	if data.ChatID == "" {
		return "", skalderrors.NewValidationError("POST /api/v1/chats/allocate", "allocated chat id is empty", nil)
	}
	return data.ChatID, nil
}

// GetChatContext fetches member/partner/model metadata for a chat.
func (c *Client) GetChatContext(ctx context.Context, chatID string) (*ports.ChatContext, error) {
	var data ports.ChatContext
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/chats/"+url.PathEscape(chatID)+"/context", nil, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetChatMessages fetches the chat's message log, oldest first.
func (c *Client) GetChatMessages(ctx context.Context, chatID string, limit int) ([]ports.RawChatMessage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var data []ports.RawChatMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/chats/"+url.PathEscape(chatID)+"/messages", query, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// SaveChatEntity persists one exchanged message.
func (c *Client) SaveChatEntity(ctx context.Context, entity *ports.ChatEntity) error {
	if entity == nil {
		return skalderrors.NewValidationError("POST /api/v1/chat-entities", "entity is nil", nil)
	}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/chat-entities", nil, entity, nil)
}
