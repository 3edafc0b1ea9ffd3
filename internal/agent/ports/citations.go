package ports

import "context"

// RawCitation is an inline reference marker extracted from generated text:
// [cN]: TYPE/ID. Index is the marker's declared 1-based ordinal.
type RawCitation struct {
	Type  int    `json:"type"`
	ID    string `json:"id"`
	Index int    `json:"index"`
}

// Citation merges an extracted marker with the fetched source record. Number
// is stable: it equals the first marker index seen for the source id.
type Citation struct {
	SourceID string `json:"source_id"`
	Number   int    `json:"number"`
	Type     int    `json:"type"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
	FileID   string `json:"file_id,omitempty"`
}

// CitationRecorder resolves extracted markers into full citations and folds
// them into the running citation set for the current message. Implemented by
// the task loop's citation pipeline; consumed by tool handlers.
type CitationRecorder interface {
	// RecordText extracts markers from text, resolves them, and emits a
	// citations.updated event. Returns the citations resolved from this text.
	RecordText(ctx context.Context, text string) ([]Citation, error)
}
