// Package embedding turns text into dense vectors. Every provider returns
// errors wrapping domain.ErrEmbeddingService so callers can tell an upstream
// failure apart from bad input.
package embedding

import (
	"context"
	"fmt"
	"time"

	"tejas.dev/portfolio-api/internal/domain"
)

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 20 * time.Second

// Embedder maps text to vectors. Implementations must return vectors of one
// fixed dimension for a given Model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

func serviceError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrEmbeddingService, provider, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// embedOne is the shared single-text path on top of EmbedBatch.
func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrEmbeddingService)
	}
	return vectors[0], nil
}
