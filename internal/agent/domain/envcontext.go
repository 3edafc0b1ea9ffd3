package domain

import (
	"fmt"

	"skald/internal/agent/ports"
)

const (
	documentContextTemplate = "You are answering about a single document (summary id %s). " +
		"Use only that document's content when answering. If the document does not " +
		"contain the information, say so explicitly instead of guessing."

	collectionContextTemplate = "You are answering about the file collection %s. " +
		"Use only files from that collection when answering. If the collection does " +
		"not contain the information, say so explicitly instead of guessing."

	allFilesContextTemplate = "You may use all of the member's files and the knowledge " +
		"base to answer. List and read files as needed. If the available files do not " +
		"contain the information, say so explicitly instead of guessing."

	noFilesContextTemplate = "No file access is enabled for this conversation. Answer " +
		"from the conversation alone, and state explicitly when you would need file " +
		"access to answer."
)

// BuildEnvironmentContext selects the prompt fragment describing what data
// the agent may access. Returns "" when no fragment applies; the branch
// selection is a contract, the wording is not.
func BuildEnvironmentContext(scope ports.Scope, knowledgeEnabled bool, summaryID, collectionID string) string {
	switch {
	case scope == ports.ScopeDocument && summaryID != "":
		return fmt.Sprintf(documentContextTemplate, summaryID)
	case scope == ports.ScopeCollection && collectionID != "":
		return fmt.Sprintf(collectionContextTemplate, collectionID)
	case scope == ports.ScopeGeneral && knowledgeEnabled:
		return allFilesContextTemplate
	case scope == ports.ScopeGeneral && !knowledgeEnabled:
		return noFilesContextTemplate
	default:
		return ""
	}
}
