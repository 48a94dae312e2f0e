package embedding

import (
	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder wraps an Embedder with an in-process ristretto cache keyed
// by normalized content hash. Re-embedding the same text (dedup checks,
// index rebuilds) becomes a cache hit.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache holding up to maxEntries vectors.
func NewCached(inner Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the embedding for text, serving repeats from cache.
// Cache misses are embedded by the wrapped Embedder; cache admission is
// best effort and never affects correctness.
func (e *CachedEmbedder) Embed(text string) ([]float32, error) {
	key := ContentHash(text)
	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := e.inner.Embed(text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vec, 1)
	return vec, nil
}

// Dimensions returns the wrapped embedder's dimensionality.
func (e *CachedEmbedder) Dimensions() int { return e.inner.Dimensions() }

// Close releases cache resources.
func (e *CachedEmbedder) Close() { e.cache.Close() }
