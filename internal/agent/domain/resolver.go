package domain

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"skald/internal/agent/ports"
)

// CitationResolver turns extracted markers into full source records through
// the request-scoped summary cache and a batch fetch.
type CitationResolver struct {
	backend ports.ProtectedService
	cache   *lru.Cache[string, []ports.SummaryRecord]
	logger  ports.Logger
}

// NewCitationResolver builds a resolver bound to one request's cache.
func NewCitationResolver(backend ports.ProtectedService, cache *lru.Cache[string, []ports.SummaryRecord], logger ports.Logger) *CitationResolver {
	return &CitationResolver{
		backend: backend,
		cache:   cache,
		logger:  orNop(logger),
	}
}

// Resolve batch-fetches source records for the deduplicated markers and
// attaches each record's number (the extracted index for its id). The result
// is sorted ascending by number; records whose id had no marker sort last.
func (r *CitationResolver) Resolve(ctx context.Context, raws []ports.RawCitation) ([]ports.Citation, error) {
	if len(raws) == 0 {
		return nil, nil
	}

	ids := distinctIDs(raws)
	records, err := r.fetchSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	numberByID := make(map[string]int, len(raws))
	typeByID := make(map[string]int, len(raws))
	for _, raw := range raws {
		if _, ok := numberByID[raw.ID]; !ok {
			numberByID[raw.ID] = raw.Index
			typeByID[raw.ID] = raw.Type
		}
	}

	citations := make([]ports.Citation, 0, len(records))
	for _, record := range records {
		citations = append(citations, ports.Citation{
			SourceID: record.ID,
			Number:   numberByID[record.ID],
			Type:     typeByID[record.ID],
			Title:    record.Title,
			Content:  record.Content,
			FileID:   record.FileID,
		})
	}
	sortCitations(citations)
	return citations, nil
}

// fetchSummaries consults the request-scoped cache keyed by the sorted,
// comma-joined id set before hitting the backend.
func (r *CitationResolver) fetchSummaries(ctx context.Context, ids []string) ([]ports.SummaryRecord, error) {
	key := cacheKey(ids)
	if records, ok := r.cache.Get(key); ok {
		r.logger.Debug("summary cache hit: key=%s records=%d", key, len(records))
		return records, nil
	}

	records, err := r.backend.GetSummariesByIDs(ctx, ids)
	if err != nil {
		r.logger.Error("summary batch fetch failed: ids=%s error=%v", key, err)
		return nil, err
	}
	r.cache.Add(key, records)
	return records, nil
}

func distinctIDs(raws []ports.RawCitation) []string {
	seen := make(map[string]bool, len(raws))
	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		if seen[raw.ID] {
			continue
		}
		seen[raw.ID] = true
		ids = append(ids, raw.ID)
	}
	return ids
}

func cacheKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
