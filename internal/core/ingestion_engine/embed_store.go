package ingestion_engine

import (
	"context"
	"time"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/metrics"
)

// EmbeddingBatcher feeds texts to the provider in fixed-size batches, one call
// at a time, and hands each batch's vectors to a sink before moving on.
type EmbeddingBatcher struct {
	provider  core.EmbeddingProvider
	batchSize int
	dim       int // 0 disables the dimension check
	metrics   *metrics.Metrics
}

func NewEmbeddingBatcher(provider core.EmbeddingProvider, batchSize, dim int, m *metrics.Metrics) *EmbeddingBatcher {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &EmbeddingBatcher{provider: provider, batchSize: batchSize, dim: dim, metrics: m}
}

// Run embeds texts in order. onBatch receives the offset of the batch's first
// text and exactly one vector per text in that batch. The first failure stops
// the run; batches already handed to onBatch are not undone.
func (b *EmbeddingBatcher) Run(ctx context.Context, texts []string, onBatch func(offset int, vectors [][]float32) error) error {
	for offset := 0; offset < len(texts); offset += b.batchSize {
		end := min(offset+b.batchSize, len(texts))
		batchNo := offset/b.batchSize + 1

		started := time.Now()
		vecs, err := b.provider.EmbedTexts(ctx, texts[offset:end])
		if err != nil {
			err = core.Errorf(core.ErrEmbeddingProvider, "embedding batch %d failed: %w", batchNo, err)
		} else {
			err = b.check(batchNo, vecs, end-offset)
		}
		if err != nil {
			b.metrics.EmbedBatch("error", time.Since(started))
			return err
		}
		b.metrics.EmbedBatch("ok", time.Since(started))
		applog.Debug("embedded batch", "batch", batchNo, "size", end-offset, "elapsed_ms", time.Since(started).Milliseconds())

		if err := onBatch(offset, vecs); err != nil {
			return err
		}
	}
	return nil
}

func (b *EmbeddingBatcher) check(batchNo int, vecs [][]float32, want int) error {
	if len(vecs) != want {
		return core.Errorf(core.ErrEmbeddingProvider, "embedding batch %d returned %d vectors for %d inputs", batchNo, len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return core.Errorf(core.ErrEmbeddingProvider, "embedding batch %d: vector %d is empty", batchNo, i)
		}
		if b.dim > 0 && len(v) != b.dim {
			return core.Errorf(core.ErrEmbeddingProvider, "embedding batch %d: vector %d has dimension %d, want %d", batchNo, i, len(v), b.dim)
		}
	}
	return nil
}
