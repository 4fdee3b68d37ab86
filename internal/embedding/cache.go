package embedding

import (
	"context"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EmbeddingCache is an LRU cache for embeddings keyed by text.
type EmbeddingCache struct {
	lru *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates a new cache with the given capacity. A non-positive capacity
// falls back to 1000 entries.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1000
	}
	// lru.New only fails for a non-positive size
	c, _ := lru.New[string, []float32](capacity)
	return &EmbeddingCache{lru: c}
}

// Get returns a copy of the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Set stores a copy of value under key, evicting the least recently used entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.lru.Add(key, slices.Clone(value))
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	return c.lru.Len()
}

// CachedEmbedder memoizes text embeddings. Image embeddings pass straight through; they are
// persisted by Service instead.
type CachedEmbedder struct {
	Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps e with a text embedding cache of the given size.
func NewCachedEmbedder(e Embedder, size int) *CachedEmbedder {
	return &CachedEmbedder{Embedder: e, cache: NewEmbeddingCache(size)}
}

// EmbedText returns the cached embedding for text, computing it on a miss.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.Embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v)
	return v, nil
}
