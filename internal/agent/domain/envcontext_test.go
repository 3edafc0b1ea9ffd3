package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"skald/internal/agent/ports"
)

func TestBuildEnvironmentContextBranches(t *testing.T) {
	tests := []struct {
		name             string
		scope            ports.Scope
		knowledgeEnabled bool
		summaryID        string
		collectionID     string
		wantContains     string
		wantEmpty        bool
	}{
		{
			name:         "document scope names the summary",
			scope:        ports.ScopeDocument,
			summaryID:    "sum-42",
			wantContains: "sum-42",
		},
		{
			name:         "collection scope names the collection",
			scope:        ports.ScopeCollection,
			collectionID: "col-7",
			wantContains: "col-7",
		},
		{
			name:             "general with knowledge grants all files",
			scope:            ports.ScopeGeneral,
			knowledgeEnabled: true,
			wantContains:     "all of the member's files",
		},
		{
			name:         "general without knowledge denies file access",
			scope:        ports.ScopeGeneral,
			wantContains: "No file access",
		},
		{
			name:      "document scope without a summary id yields nothing",
			scope:     ports.ScopeDocument,
			wantEmpty: true,
		},
		{
			name:      "collection scope without a collection id yields nothing",
			scope:     ports.ScopeCollection,
			wantEmpty: true,
		},
		{
			name:      "unknown scope yields nothing",
			scope:     ports.Scope("weird"),
			wantEmpty: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := BuildEnvironmentContext(tc.scope, tc.knowledgeEnabled, tc.summaryID, tc.collectionID)
			if tc.wantEmpty {
				require.Empty(t, out)
				return
			}
			require.Contains(t, out, tc.wantContains)
		})
	}
}

func TestBuildEnvironmentContextDocumentWinsOverKnowledge(t *testing.T) {
	// Knowledge being enabled must not widen a document-scoped conversation.
	out := BuildEnvironmentContext(ports.ScopeDocument, true, "sum-1", "col-1")
	require.Contains(t, out, "sum-1")
	require.NotContains(t, out, "col-1")
}
