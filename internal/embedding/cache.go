package embedding

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyperjump/gazou/internal/models"
)

// CachedGateway memoizes EmbedText results in an LRU keyed by the query text.
// DescribeImages is passed through.
type CachedGateway struct {
	next   Gateway
	cache  *lru.Cache[string, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedGateway wraps next with a query cache of the given size.
func NewCachedGateway(next Gateway, size int) (*CachedGateway, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedGateway{next: next, cache: cache}, nil
}

// DescribeImages implements Gateway.
func (c *CachedGateway) DescribeImages(ctx context.Context, thumbnails []string, rename bool) ([]models.ImageEmbedding, error) {
	return c.next.DescribeImages(ctx, thumbnails, rename)
}

// EmbedText returns a cached vector or asks the wrapped gateway. Errors are not cached.
func (c *CachedGateway) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)
	v, err := c.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

// Purge drops every cached vector, e.g. after the API key changes.
func (c *CachedGateway) Purge() {
	c.cache.Purge()
}

// CacheStats reports hit and miss counts.
func (c *CachedGateway) CacheStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
