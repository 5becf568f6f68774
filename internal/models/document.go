// Package models defines core data structures for documents, chunks, index entries, and queries.
package models

import "strings"

// Format identifies how a source file is converted to text.
type Format int

const (
	FormatUnknown Format = iota
	FormatPlainText
	FormatMarkdown
	FormatWord
	FormatPDF
	FormatSpreadsheet
)

// String returns the lower-case name of the format.
func (f Format) String() string {
	switch f {
	case FormatPlainText:
		return "plaintext"
	case FormatMarkdown:
		return "markdown"
	case FormatWord:
		return "word"
	case FormatPDF:
		return "pdf"
	case FormatSpreadsheet:
		return "spreadsheet"
	default:
		return "unknown"
	}
}

// Document is a source file queued for ingestion. It only lives for the duration of a run.
type Document struct {
	Path   string `json:"path"`
	Source string `json:"source"`
	Format Format `json:"format"`
}

// Chunk is an ordered slice of a document's extracted text.
type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// IndexEntry is one persisted record of the knowledge base.
type IndexEntry struct {
	ID      int       `json:"id"`
	Content string    `json:"content"`
	Vector  []float32 `json:"vector"`
	Source  string    `json:"source"`
}

// Empty reports whether the entry carries no usable content.
func (e *IndexEntry) Empty() bool {
	return strings.TrimSpace(e.Content) == ""
}
