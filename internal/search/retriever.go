// Package search ranks knowledge-base entries against a query and builds augmented prompts.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrInvalidTopK is returned when a search asks for zero or fewer results.
	ErrInvalidTopK = errors.New("top_k must be positive")
	// ErrEmptyQuery is returned when a query request carries no text.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// checkEvery is how many entries are scored between context checks.
const checkEvery = 1024

// Retriever scores stored entries lexically against a query.
type Retriever struct {
	store    storage.Reader
	minScore float64
	maxTopK  int
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithMinScore sets the relevance threshold below which entries are dropped.
func WithMinScore(score float64) Option {
	return func(r *Retriever) { r.minScore = score }
}

// WithMaxTopK caps the top_k accepted by Query.
func WithMaxTopK(n int) Option {
	return func(r *Retriever) { r.maxTopK = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever creates a retriever over store.
func NewRetriever(store storage.Reader, opts ...Option) *Retriever {
	r := &Retriever{
		store:    store,
		minScore: DefaultMinScore,
		maxTopK:  models.MaxTopK,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns at most topK entries ordered by score, highest first, with
// ties broken by ascending id. A blank query or an empty knowledge base yields
// no results.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]models.ScoredResult, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	if strings.TrimSpace(query) == "" {
		return []models.ScoredResult{}, nil
	}
	entries, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	s := newScorer(query)
	results := make([]models.ScoredResult, 0)
	for i, entry := range entries {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := s.score(entry.Content)
		if score <= 0 || score < r.minScore {
			continue
		}
		results = append(results, models.ScoredResult{Score: score, Entry: entry})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	r.logger.Debug("search complete",
		zap.String("query", query),
		zap.Int("candidates", len(entries)),
		zap.Int("results", len(results)))
	return results, nil
}

// Query validates q, runs Search and wraps the results with timing.
func (r *Retriever) Query(ctx context.Context, q *models.Query) (*models.SearchResponse, error) {
	start := time.Now()
	if err := ProcessQuery(q, r.maxTopK); err != nil {
		return nil, err
	}
	results, err := r.Search(ctx, q.Query, q.TopK)
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		Query:     q.Query,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}
