package protected

import (
	"context"
	"net/http"

	"skald/internal/agent/ports"
)

type searchRequest struct {
	MemberID string `json:"member_id,omitempty"`
	ScopeID  string `json:"scope_id,omitempty"`
	Query    string `json:"query"`
	Limit    int    `json:"limit,omitempty"`
}

// SearchKnowledge searches the member's whole knowledge base.
func (c *Client) SearchKnowledge(ctx context.Context, memberID, query string, limit int) ([]ports.SearchHit, error) {
	body := searchRequest{MemberID: memberID, Query: query, Limit: limit}
	var data []ports.SearchHit
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/search/knowledge", nil, body, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// SearchDocuments searches within a collection or a single document.
func (c *Client) SearchDocuments(ctx context.Context, scopeID, query string, limit int) ([]ports.SearchHit, error) {
	body := searchRequest{ScopeID: scopeID, Query: query, Limit: limit}
	var data []ports.SearchHit
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/search/documents", nil, body, &data); err != nil {
		return nil, err
	}
	return data, nil
}
