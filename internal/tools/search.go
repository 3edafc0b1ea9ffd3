package tools

import (
	"context"
	"fmt"
	"strings"

	"skald/internal/agent/ports"
)

const defaultSearchLimit = 10

// SearchKnowledgeTool searches the member's whole knowledge base.
type SearchKnowledgeTool struct{}

func NewSearchKnowledge() *SearchKnowledgeTool { return &SearchKnowledgeTool{} }

func (t *SearchKnowledgeTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "search_knowledge",
		Description: "Search across all of the member's files and knowledge. " +
			"Returns ranked snippets with their summary ids for citing.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "The search query"},
				"limit": {Type: "integer", Description: "Maximum number of results (default 10)"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchKnowledgeTool) Execute(ctx context.Context, call ports.ToolCall, tcx *ports.TurnContext) (string, error) {
	query, err := requiredString(call.Arguments, "query")
	if err != nil {
		return "", err
	}
	limit := intArg(call.Arguments, "limit", defaultSearchLimit)

	hits, err := tcx.Backend.SearchKnowledge(ctx, tcx.MemberID, query, limit)
	if err != nil {
		return "", err
	}
	return formatHits(query, hits), nil
}

// SearchDocumentsTool searches within the conversation's designated scope:
// the collection, or the single document.
type SearchDocumentsTool struct{}

func NewSearchDocuments() *SearchDocumentsTool { return &SearchDocumentsTool{} }

func (t *SearchDocumentsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "search_documents",
		Description: "Search within the documents this conversation is scoped to. " +
			"Returns ranked snippets with their summary ids for citing.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "The search query"},
				"limit": {Type: "integer", Description: "Maximum number of results (default 10)"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchDocumentsTool) Execute(ctx context.Context, call ports.ToolCall, tcx *ports.TurnContext) (string, error) {
	query, err := requiredString(call.Arguments, "query")
	if err != nil {
		return "", err
	}
	limit := intArg(call.Arguments, "limit", defaultSearchLimit)

	scopeID := tcx.CollectionID
	if scopeID == "" {
		scopeID = tcx.SummaryID
	}
	if scopeID == "" {
		// General scope: fall back to the whole knowledge base.
		hits, err := tcx.Backend.SearchKnowledge(ctx, tcx.MemberID, query, limit)
		if err != nil {
			return "", err
		}
		return formatHits(query, hits), nil
	}

	hits, err := tcx.Backend.SearchDocuments(ctx, scopeID, query, limit)
	if err != nil {
		return "", err
	}
	return formatHits(query, hits), nil
}

func formatHits(query string, hits []ports.SearchHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d result(s) for %q:\n", len(hits), query)
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. [summary_id=%s] %s\n   %s\n", i+1, hit.SummaryID, hit.Title, strings.TrimSpace(hit.Snippet))
	}
	return b.String()
}
