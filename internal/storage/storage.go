// Package storage persists the knowledge base as a single JSON artifact and caches it for readers.
package storage

import "github.com/hyperjump/kbase/internal/models"

// Reader is the query-time view of the knowledge base.
type Reader interface {
	// Load returns the cached entries, reading the artifact on first use.
	Load() ([]models.IndexEntry, error)
}

// Writer replaces the knowledge base as a whole.
type Writer interface {
	Write(entries []models.IndexEntry) error
}
