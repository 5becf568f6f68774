package indexer

import (
	"time"

	"github.com/hyperjump/kbase/internal/models"
)

// Report summarizes one ingestion run, including every item that was skipped.
type Report struct {
	RunID        string           `json:"run_id"`
	Dir          string           `json:"dir"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration_ns"`
	Files        int              `json:"files"`
	FilesIndexed int              `json:"files_indexed"`
	Chunks       int              `json:"chunks"`
	Entries      int              `json:"entries"`
	Dimensions   int              `json:"dimensions"`
	Outcomes     []models.Outcome `json:"outcomes"`
}

// Count returns the number of outcomes of the given kind.
func (r *Report) Count(kind models.OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Clean reports whether nothing was skipped.
func (r *Report) Clean() bool {
	return len(r.Outcomes) == 0
}

func (r *Report) add(o models.Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}
