package domain

import "fmt"

// SourceKind classifies where a piece of text came from.
type SourceKind string

const (
	KindQnA      SourceKind = "qna"
	KindProfile  SourceKind = "profile"
	KindTimeline SourceKind = "timeline"
	KindResume   SourceKind = "resume"
	KindLinks    SourceKind = "links"
	KindNotes    SourceKind = "notes"
	KindPDF      SourceKind = "pdf"
)

// AllKinds lists every known SourceKind.
var AllKinds = []SourceKind{KindQnA, KindProfile, KindTimeline, KindResume, KindLinks, KindNotes, KindPDF}

// IsValid reports whether k is one of the known kinds.
func (k SourceKind) IsValid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// DisplayName is the kind as shown inside a source label.
func (k SourceKind) DisplayName() string {
	if k == KindQnA {
		return "Q&A"
	}
	return string(k)
}

// Rank orders kinds for prompt composition: Q&A pairs first, then profile
// facts, timeline facts, resume text, and everything else last.
func (k SourceKind) Rank() int {
	switch k {
	case KindQnA:
		return 0
	case KindProfile:
		return 1
	case KindTimeline:
		return 2
	case KindResume:
		return 3
	default:
		return 4
	}
}

// Label builds the provenance string "<filename> (<kind>)".
func Label(filename string, kind SourceKind) string {
	return fmt.Sprintf("%s (%s)", filename, kind.DisplayName())
}

// Format is the on-disk file format of a source document.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// SourceDocument is a file read from the data directory, before it is turned
// into records.
type SourceDocument struct {
	Path     string
	Filename string
	Format   Format
	Raw      []byte
}

// Record is one unit of loaded text with its provenance.
type Record struct {
	Text     string         `json:"text"`
	Label    string         `json:"label"`
	Kind     SourceKind     `json:"kind"`
	Filename string         `json:"filename"`
	Path     string         `json:"path"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SourceSummary describes one source file that contributed to an index.
type SourceSummary struct {
	Label    string     `json:"label"`
	Filename string     `json:"filename"`
	Kind     SourceKind `json:"kind"`
	Format   Format     `json:"format"`
	Records  int        `json:"records"`
	Chunks   int        `json:"chunks"`
}
