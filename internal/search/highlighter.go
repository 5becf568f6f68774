package search

import (
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/pkg/utils"
)

// SnippetLength is the number of characters shown for a reference.
const SnippetLength = 100

// Highlight truncates content to maxLen characters and appends "..." when cut.
func Highlight(content string, maxLen int) string {
	return utils.Truncate(content, maxLen)
}

// Reference is a short pointer to a retrieved entry, shown alongside an answer.
type Reference struct {
	ID      int     `json:"id"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// References returns snippet references for results, in order.
func References(results []models.ScoredResult) []Reference {
	refs := make([]Reference, 0, len(results))
	for _, r := range results {
		refs = append(refs, Reference{
			ID:      r.Entry.ID,
			Source:  r.Entry.Source,
			Score:   r.Score,
			Snippet: Highlight(r.Entry.Content, SnippetLength),
		})
	}
	return refs
}
