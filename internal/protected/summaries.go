package protected

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"skald/internal/agent/ports"
)

// GetSummariesByIDs batch-fetches full source records. Unknown ids are
// silently absent from the result.
func (c *Client) GetSummariesByIDs(ctx context.Context, ids []string) ([]ports.SummaryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	body := map[string][]string{"ids": ids}
	var data []ports.SummaryRecord
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/summaries/batch", nil, body, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetMemberSummaries pages through a member's summaries, newest first.
func (c *Client) GetMemberSummaries(ctx context.Context, memberID string, page, size int) ([]ports.SummaryRecord, error) {
	query := url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
	}
	path := "/api/v1/members/" + url.PathEscape(memberID) + "/summaries"
	var data []ports.SummaryRecord
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}
