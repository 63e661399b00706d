package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

// Cache defaults
const (
	DefaultCacheSize = 10000
	DefaultCacheTTL  = time.Hour
)

// CacheRecorder observes cache lookups
type CacheRecorder interface {
	ObserveEmbeddingLookup(hit bool)
}

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// Cache memoizes embeddings by the SHA-256 of their input text. Entries
// expire after the TTL and the least recently used entry is evicted at
// capacity. Concurrent misses for the same text each call the backend.
type Cache struct {
	embedder Embedder
	entries  *expirable.LRU[string, []float32]
	recorder CacheRecorder
	logger   *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithRecorder reports hits and misses to r
func WithRecorder(r CacheRecorder) CacheOption {
	return func(c *Cache) {
		c.recorder = r
	}
}

// WithCacheLogger sets the cache logger
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache wraps e with an expiring LRU cache
func NewCache(e Embedder, size int, ttl time.Duration, opts ...CacheOption) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		embedder: e,
		entries:  expirable.NewLRU[string, []float32](size, nil, ttl),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached vector for text, computing and storing it
// on a miss. Backend failures wrap types.ErrBackend and are not cached.
func (c *Cache) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	if err := ValidateRequest(EmbeddingRequest{Text: text}); err != nil {
		return nil, err
	}

	key := ComputeHash(text)
	if vec, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		c.observe(true)
		return copyVector(vec), nil
	}
	c.misses.Add(1)
	c.observe(false)

	emb, err := c.embedder.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	if err != nil {
		c.logger.Debug("embedding backend failed",
			slog.String("provider", c.embedder.Provider()),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", types.ErrBackend, err)
	}
	if emb == nil || len(emb.Vector) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty vector", types.ErrBackend, c.embedder.Provider())
	}

	vec := copyVector(emb.Vector)
	c.entries.Add(key, vec)
	return copyVector(vec), nil
}

// Embedder returns the wrapped backend
func (c *Cache) Embedder() Embedder {
	return c.embedder
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.entries.Purge()
}

// Stats returns hit, miss and size counters
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.entries.Len(),
	}
}

func (c *Cache) observe(hit bool) {
	if c.recorder != nil {
		c.recorder.ObserveEmbeddingLookup(hit)
	}
}

// copyVector keeps callers from mutating cached vectors
func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
