package tools

import (
	"context"
	"fmt"
	"strings"

	"skald/internal/agent/ports"
	"skald/internal/token"
)

// maxReadTokens caps how much document content one read_file call returns.
const maxReadTokens = 4000

// ListAllFilesTool lists every file visible to the member.
type ListAllFilesTool struct{}

func NewListAllFiles() *ListAllFilesTool { return &ListAllFilesTool{} }

func (t *ListAllFilesTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "list_all_files",
		Description: "List all files the member has uploaded, across all collections. " +
			"Returns each file's id, name and summary id. Use read_file to open one.",
		Parameters: ports.ParameterSchema{
			Type:       "object",
			Properties: map[string]ports.Property{},
		},
	}
}

func (t *ListAllFilesTool) Execute(ctx context.Context, _ ports.ToolCall, tcx *ports.TurnContext) (string, error) {
	files, err := tcx.Backend.ListFiles(ctx, tcx.MemberID)
	if err != nil {
		return "", err
	}
	return formatFileList(files), nil
}

// ListCollectionFilesTool lists the files of the conversation's collection.
type ListCollectionFilesTool struct{}

func NewListCollectionFiles() *ListCollectionFilesTool { return &ListCollectionFilesTool{} }

func (t *ListCollectionFilesTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "list_collection_files",
		Description: "List the files of the collection this conversation is scoped to. " +
			"Returns each file's id, name and summary id. Use read_file to open one.",
		Parameters: ports.ParameterSchema{
			Type:       "object",
			Properties: map[string]ports.Property{},
		},
	}
}

func (t *ListCollectionFilesTool) Execute(ctx context.Context, _ ports.ToolCall, tcx *ports.TurnContext) (string, error) {
	if tcx.CollectionID == "" {
		return "", fmt.Errorf("conversation has no collection scope")
	}
	files, err := tcx.Backend.ListCollectionFiles(ctx, tcx.CollectionID)
	if err != nil {
		return "", err
	}
	return formatFileList(files), nil
}

// ReadFileTool fetches one file's extracted content.
type ReadFileTool struct{}

func NewReadFile() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "read_file",
		Description: "Read the extracted content of one file by its file id. " +
			"Long documents are truncated; search_documents can locate specific passages.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"file_id": {Type: "string", Description: "The id of the file to read"},
			},
			Required: []string{"file_id"},
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, call ports.ToolCall, tcx *ports.TurnContext) (string, error) {
	fileID, err := requiredString(call.Arguments, "file_id")
	if err != nil {
		return "", err
	}

	file, err := tcx.Backend.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if file.SummaryID == "" {
		return fmt.Sprintf("File %s (%s) has no extracted content yet.", file.ID, file.Name), nil
	}

	records, err := tcx.Backend.GetSummariesByIDs(ctx, []string{file.SummaryID})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return fmt.Sprintf("File %s (%s) has no extracted content yet.", file.ID, file.Name), nil
	}

	record := records[0]
	content, truncated := clipToTokens(record.Content, maxReadTokens)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", record.Title)
	fmt.Fprintf(&b, "summary_id: %s\n\n", record.ID)
	b.WriteString(content)
	if truncated {
		b.WriteString("\n\n[content truncated; use search_documents to find specific passages]")
	}
	return b.String(), nil
}

func formatFileList(files []ports.FileRecord) string {
	if len(files) == 0 {
		return "No files found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d file(s):\n", len(files))
	for _, file := range files {
		fmt.Fprintf(&b, "- id=%s name=%s", file.ID, file.Name)
		if file.SummaryID != "" {
			fmt.Fprintf(&b, " summary_id=%s", file.SummaryID)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// clipToTokens truncates text to roughly budget tokens, cutting on a line
// boundary where possible.
func clipToTokens(text string, budget int) (string, bool) {
	if token.Count(text) <= budget {
		return text, false
	}
	lines := strings.Split(text, "\n")
	var b strings.Builder
	used := 0
	for _, line := range lines {
		cost := token.Count(line) + 1
		if used+cost > budget {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
		used += cost
	}
	if b.Len() == 0 {
		// A single enormous line; fall back to a rune cut.
		runes := []rune(text)
		if len(runes) > budget*4 {
			runes = runes[:budget*4]
		}
		return string(runes), true
	}
	return strings.TrimRight(b.String(), "\n"), true
}
