package indexer

import "fmt"

// EmbeddingError reports a chunk that could not be vectorized. The chunk is
// left out of the knowledge base and the run continues.
type EmbeddingError struct {
	Source string
	Index  int
	Err    error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed chunk %d of %s: %v", e.Index, e.Source, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
