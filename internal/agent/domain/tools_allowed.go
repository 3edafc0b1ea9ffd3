package domain

import "skald/internal/agent/ports"

// Tool names recognized by the dispatcher.
const (
	ToolListAllFiles        = "list_all_files"
	ToolListCollectionFiles = "list_collection_files"
	ToolReadFile            = "read_file"
	ToolSearchKnowledge     = "search_knowledge"
	ToolSearchDocuments     = "search_documents"
	ToolUpdatePlan          = "update_plan"
	ToolUpdateCitations     = "update_citations"
	ToolTaskStatus          = "task_status"
)

// AllowedTools returns the tool set the model may call for a scope. The table
// is static: broader scopes see the listing and knowledge tools, narrower
// scopes only what their designated source needs.
func AllowedTools(scope ports.Scope, knowledgeEnabled bool) []string {
	switch scope {
	case ports.ScopeDocument:
		return []string{ToolReadFile, ToolUpdatePlan, ToolUpdateCitations, ToolTaskStatus}
	case ports.ScopeCollection:
		return []string{
			ToolListCollectionFiles, ToolReadFile, ToolSearchDocuments,
			ToolUpdatePlan, ToolUpdateCitations, ToolTaskStatus,
		}
	case ports.ScopeGeneral:
		if knowledgeEnabled {
			return []string{
				ToolListAllFiles, ToolReadFile, ToolSearchKnowledge, ToolSearchDocuments,
				ToolUpdatePlan, ToolUpdateCitations, ToolTaskStatus,
			}
		}
		return []string{ToolUpdatePlan, ToolUpdateCitations, ToolTaskStatus}
	default:
		return nil
	}
}

func toolAllowed(allowed []string, name string) bool {
	for _, candidate := range allowed {
		if candidate == name {
			return true
		}
	}
	return false
}
