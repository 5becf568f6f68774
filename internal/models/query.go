package models

import (
	"fmt"
	"strings"
)

const (
	// DefaultTopK is used when a query does not set a bound.
	DefaultTopK = 3
	// MaxTopK caps the number of results a single query may request.
	MaxTopK = 100
)

// Query is a retrieval request.
type Query struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate ensures the query is usable and applies defaults.
// Returns an error if the query is blank; otherwise normalizes TopK into [1, MaxTopK].
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	return nil
}
