package search_engine

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/markdave123-py/docsift/internal/metrics"
)

// QueryEmbeddingCache maps a sanitized query to its embedding. It is bounded
// (LRU by size, entries expire after ttl), process-local and safe for
// concurrent use. Concurrent misses for one query share a single compute.
// Returned vectors are shared and must not be modified.
type QueryEmbeddingCache struct {
	lru     *expirable.LRU[string, []float32]
	group   singleflight.Group
	metrics *metrics.Metrics
}

func NewQueryEmbeddingCache(size int, ttl time.Duration, m *metrics.Metrics) *QueryEmbeddingCache {
	if size <= 0 {
		size = 1024
	}
	return &QueryEmbeddingCache{
		lru:     expirable.NewLRU[string, []float32](size, nil, ttl),
		metrics: m,
	}
}

// Resolve returns the cached vector or runs compute and stores its result.
// Failed computes are not cached. compute runs detached from the caller's
// cancellation because other callers may be waiting on it.
func (c *QueryEmbeddingCache) Resolve(ctx context.Context, query string, compute func(context.Context) ([]float32, error)) ([]float32, error) {
	if vec, ok := c.lru.Get(query); ok {
		c.metrics.QueryCacheLookup(true)
		return vec, nil
	}
	c.metrics.QueryCacheLookup(false)

	ch := c.group.DoChan(query, func() (any, error) {
		if vec, ok := c.lru.Get(query); ok {
			return vec, nil
		}
		vec, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.lru.Add(query, vec)
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}
