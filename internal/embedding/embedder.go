// Package embedding provides text embedding providers, caching, and dimension checks.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kbase/internal/config"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted in embedding.provider.
const (
	ProviderONNX   = "onnx"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ErrDimensionMismatch is returned when a provider yields a vector of the wrong length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// New builds the configured provider, wrapped in a dimension check and an LRU cache.
// When the ONNX runtime or model cannot be loaded it falls back to the mock
// embedder and logs a warning.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		base Embedder
		err  error
	)
	switch cfg.Provider {
	case ProviderONNX, "":
		base, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, using mock embedder (vectors carry no meaning)",
				zap.String("model_path", cfg.ModelPath), zap.Error(err))
			base = NewMockEmbedder(cfg.Dimensions)
		}
	case ProviderOllama:
		base = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, WithLogger(logger))
	case ProviderOpenAI:
		base, err = NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.Dimensions, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
	case ProviderMock:
		base = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return NewCachedEmbedder(NewDimensionGuard(base), cfg.CacheSize), nil
}
