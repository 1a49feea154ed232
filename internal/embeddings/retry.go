package embeddings

import (
	"context"
	"math"
	"time"

	"github.com/dbdiag/dbdiag/internal/llm"
)

// RetryingEmbedder wraps an Embedder with exponential backoff retry on
// transient upstream errors, capped at a fixed retry ceiling. Permanent
// errors are returned immediately without retry.
type RetryingEmbedder struct {
	embedder Embedder
	ceiling  int
	backoff  time.Duration
}

// NewRetryingEmbedder wraps embedder with retry-with-backoff behavior.
// ceiling is the maximum number of retries attempted after the first call.
func NewRetryingEmbedder(embedder Embedder, ceiling int) Embedder {
	return &RetryingEmbedder{embedder: embedder, ceiling: ceiling, backoff: time.Second}
}

func (r *RetryingEmbedder) Name() string    { return r.embedder.Name() }
func (r *RetryingEmbedder) Dimensions() int { return r.embedder.Dimensions() }

func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.ceiling; attempt++ {
		vectors, err := r.embedder.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !llm.IsTransient(err) || attempt == r.ceiling {
			return nil, err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * r.backoff
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}
