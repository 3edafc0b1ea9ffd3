package domain

import (
	"regexp"
	"sort"
	"strconv"

	"skald/internal/agent/ports"
)

// citationMarkerPattern matches inline markers of the form "[cN]: TYPE/ID".
// Whitespace around the separators is tolerated and an optional textual
// prefix before the numeric pair is ignored. Malformed markers simply do not
// match.
var citationMarkerPattern = regexp.MustCompile(
	`\[c(\d+)\]\s*:\s*(?:[A-Za-z][A-Za-z _.-]*\s+)?(\d+)\s*/\s*([A-Za-z0-9_.-]+)`,
)

// ExtractCitations finds all inline reference markers in generated text and
// returns deduplicated (type, id, index) tuples. The index is the marker's
// declared 1-based ordinal, not a running counter. Duplicates by (type, id)
// keep the first occurrence's index; later duplicates are discarded even if
// their declared index differs. Output follows first-seen order.
func ExtractCitations(text string) []ports.RawCitation {
	matches := citationMarkerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	type key struct {
		typeTag int
		id      string
	}
	seen := make(map[key]bool, len(matches))
	citations := make([]ports.RawCitation, 0, len(matches))
	for _, match := range matches {
		index, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		typeTag, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		id := match[3]

		k := key{typeTag: typeTag, id: id}
		if seen[k] {
			continue
		}
		seen[k] = true
		citations = append(citations, ports.RawCitation{Type: typeTag, ID: id, Index: index})
	}
	return citations
}

// sortCitations orders resolved citations ascending by number; records whose
// id had no marker index sort last, keeping their relative order.
func sortCitations(citations []ports.Citation) {
	sort.SliceStable(citations, func(i, j int) bool {
		a, b := citations[i].Number, citations[j].Number
		if a == 0 {
			return false
		}
		if b == 0 {
			return true
		}
		return a < b
	})
}

// mergeCitations folds newly resolved citations into the running set for the
// current message, deduplicating by source id. The first resolution of an id
// wins, keeping numbers stable.
func mergeCitations(existing, incoming []ports.Citation) []ports.Citation {
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.SourceID] = true
	}
	for _, c := range incoming {
		if seen[c.SourceID] {
			continue
		}
		seen[c.SourceID] = true
		existing = append(existing, c)
	}
	sortCitations(existing)
	return existing
}
