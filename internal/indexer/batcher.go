package indexer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dbdiag/dbdiag/internal/embeddings"
)

// Batcher computes embeddings for many texts concurrently, with a circuit
// breaker that stops issuing new calls once the upstream quota is exhausted.
type Batcher struct {
	concurrency int
	embedder    embeddings.Embedder
	onProgress  ProgressFunc
}

// NewBatcher creates a new Batcher with the given concurrency limit.
func NewBatcher(concurrency int, embedder embeddings.Embedder, onProgress ProgressFunc) *Batcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batcher{concurrency: concurrency, embedder: embedder, onProgress: onProgress}
}

// EmbedResult holds the embedding computed for one input text, indexed to
// preserve the caller's original ordering.
type EmbedResult struct {
	Index     int
	Embedding []float32
	Err       error
}

// EmbedAll embeds every text in texts, one upstream call per text, fanned
// out across the batcher's concurrency limit. Results preserve input order.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string, stage string) ([][]float32, error) {
	total := len(texts)
	if total == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var quotaExhausted int64

	sem := make(chan struct{}, b.concurrency)
	results := make([]EmbedResult, total)
	var processed int64
	var wg sync.WaitGroup

	for i, text := range texts {
		if atomic.LoadInt64(&quotaExhausted) > 0 {
			results[i] = EmbedResult{Index: i, Err: fmt.Errorf("embed text %d: skipped (API quota exhausted)", i)}
			b.reportProgress(&processed, total, stage)
			continue
		}

		select {
		case <-ctx.Done():
			results[i] = EmbedResult{Index: i, Err: ctx.Err()}
			b.reportProgress(&processed, total, stage)
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			vecs, err := b.embedder.Embed(ctx, []string{text})
			if err != nil {
				if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") || strings.Contains(err.Error(), "quota") {
					atomic.StoreInt64(&quotaExhausted, 1)
					cancel()
				}
				results[i] = EmbedResult{Index: i, Err: fmt.Errorf("embed text %d: %w", i, err)}
			} else if len(vecs) > 0 {
				results[i] = EmbedResult{Index: i, Embedding: vecs[0]}
			}
			b.reportProgress(&processed, total, stage)
		}(i, text)
	}

	wg.Wait()

	out := make([][]float32, total)
	var errs []string
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err.Error())
			continue
		}
		out[r.Index] = r.Embedding
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("embedding failures: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

func (b *Batcher) reportProgress(processed *int64, total int, stage string) {
	count := atomic.AddInt64(processed, 1)
	if b.onProgress != nil {
		b.onProgress(int(count), total, stage)
	}
}
