package protected

import (
	"context"
	"net/http"
	"net/url"

	"skald/internal/agent/ports"
)

// GetFile fetches metadata and detail for one file.
func (c *Client) GetFile(ctx context.Context, fileID string) (*ports.FileRecord, error) {
	var data ports.FileRecord
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/files/"+url.PathEscape(fileID), nil, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ListFiles lists all files visible to a member.
func (c *Client) ListFiles(ctx context.Context, memberID string) ([]ports.FileRecord, error) {
	query := url.Values{"member_id": {memberID}}
	var data []ports.FileRecord
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/files", query, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// ListCollectionFiles lists the files of one collection.
func (c *Client) ListCollectionFiles(ctx context.Context, collectionID string) ([]ports.FileRecord, error) {
	var data []ports.FileRecord
	path := "/api/v1/collections/" + url.PathEscape(collectionID) + "/files"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}
