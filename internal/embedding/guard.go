package embedding

import (
	"context"
	"fmt"
)

// dimensionGuard rejects vectors whose length differs from Dimensions().
type dimensionGuard struct {
	Embedder
}

// NewDimensionGuard wraps e so every returned vector is checked against e.Dimensions().
func NewDimensionGuard(e Embedder) Embedder {
	return dimensionGuard{Embedder: e}
}

func (g dimensionGuard) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := g.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := g.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (g dimensionGuard) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := g.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if err := g.check(v); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return vecs, nil
}

func (g dimensionGuard) check(v []float32) error {
	if want := g.Dimensions(); len(v) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), want)
	}
	return nil
}
