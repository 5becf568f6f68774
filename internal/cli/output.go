// Package cli renders search results, ingestion reports and status for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/kbase/internal/indexer"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/search"
	"github.com/hyperjump/kbase/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms for %q\n\n", response.Total, response.QueryTime, response.Query)
	for i, result := range response.Results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "[%d] Score: %.4f | Source: %s | ID: %d\n", i+1, result.Score, result.Entry.Source, result.Entry.ID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(result.Entry.Content, 200))
	}
	return nil
}

// WriteReferences lists the entries an answer drew on.
func WriteReferences(w io.Writer, refs []search.Reference) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\nReferences:\n", rule)
	for i, ref := range refs {
		fmt.Fprintf(w, "  [%d] %s (%.2f): %s\n", i+1, ref.Source, ref.Score, ref.Snippet)
	}
}

// WriteReport writes an ingestion report to w in the given format.
func WriteReport(w io.Writer, report *indexer.Report, indexPath string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			*indexer.Report
			IndexPath string `json:"index_path"`
		}{report, indexPath})
	}
	fmt.Fprintf(w, "\nIngested %s in %s (run %s)\n", report.Dir, report.Duration.Round(time.Millisecond), report.RunID)
	fmt.Fprintf(w, "  Files:    %d found, %d indexed\n", report.Files, report.FilesIndexed)
	fmt.Fprintf(w, "  Chunks:   %d produced, %d stored\n", report.Chunks, report.Entries)
	if report.Dimensions > 0 {
		fmt.Fprintf(w, "  Vectors:  %d dimensions\n", report.Dimensions)
	}
	if indexPath != "" {
		fmt.Fprintf(w, "  Index:    %s\n", indexPath)
	}
	if report.Clean() {
		fmt.Fprintln(w, "  Skipped:  none")
		return nil
	}
	fmt.Fprintf(w, "  Skipped:  %d files, %d images, %d chunks\n",
		report.Count(models.SkipFile), report.Count(models.SkipImage), report.Count(models.SkipChunk))
	for _, o := range report.Outcomes {
		fmt.Fprintf(w, "    - %s %s", o.Kind, o.Path)
		switch o.Kind {
		case models.SkipImage:
			fmt.Fprintf(w, " page %d image %s", o.Page, o.Image)
		case models.SkipChunk:
			fmt.Fprintf(w, " chunk %d", o.Chunk)
		}
		fmt.Fprintf(w, ": %s\n", o.Reason)
	}
	return nil
}

// Status describes the knowledge base a command would serve.
type Status struct {
	IndexPath  string         `json:"index_path"`
	Exists     bool           `json:"exists"`
	SizeBytes  int64          `json:"size_bytes"`
	ModTime    time.Time      `json:"mod_time,omitempty"`
	Entries    int            `json:"entries"`
	Dimensions int            `json:"dimensions"`
	Sources    map[string]int `json:"sources"`
	Embedding  string         `json:"embedding"`
	ChatModel  string         `json:"chat_model"`
	OCR        string         `json:"ocr"`
}

// CountSources returns the number of entries per source.
func CountSources(entries []models.IndexEntry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Source]++
	}
	return counts
}

// WriteStatus writes status to w in the given format.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "Index:      %s\n", status.IndexPath)
	if !status.Exists {
		fmt.Fprintln(w, "            (not built yet; run 'kbase ingest')")
	} else {
		fmt.Fprintf(w, "Size:       %s (modified %s)\n", FormatBytes(status.SizeBytes), status.ModTime.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Entries:    %d from %d sources\n", status.Entries, len(status.Sources))
	fmt.Fprintf(w, "Dimensions: %d\n", status.Dimensions)
	fmt.Fprintf(w, "Embedding:  %s\n", status.Embedding)
	fmt.Fprintf(w, "Chat model: %s\n", status.ChatModel)
	fmt.Fprintf(w, "OCR:        %s\n", status.OCR)
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
