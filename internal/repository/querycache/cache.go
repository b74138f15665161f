// Package querycache memoizes query embeddings in a bounded
// in-process LRU so repeated questions skip the embedding API.
package querycache

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opencampus/tutordex/internal/domain"
)

// maxKeyRunes caps normalized keys so pathological questions cannot
// grow the key space unboundedly.
const maxKeyRunes = 200

// Cache is a caching decorator around a domain.Embedder.
// Entries are evicted least-recently-used once Capacity is exceeded;
// there is no time-based expiry. Failed embed calls are never cached.
type Cache struct {
	inner      domain.Embedder
	capacity   int
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type entry struct {
	key string
	vec []float32
}

// New creates a caching decorator with the given capacity.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	capacity int,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		inner:      inner,
		capacity:   capacity,
		cacheTotal: cacheTotal,
		logger:     logger,
		entries:    make(map[string]*list.Element, capacity),
		order:      list.New(),
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
//
// The lock is never held across the inner call, so concurrent misses
// on the same key may each reach the provider; last writer wins.
func (c *Cache) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := NormalizeKey(text)

	if vec, ok := c.lookup(key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed query: %w", err)
	}

	c.insert(key, result.Embedding)
	return result, nil
}

// HealthCheck delegates to the inner embedder when it supports it.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// NormalizeKey folds a question to its cache key: trimmed, lower-cased
// and capped to maxKeyRunes so near-duplicate casing and whitespace
// reuse the same entry.
func NormalizeKey(text string) string {
	key := strings.ToLower(strings.TrimSpace(text))
	runes := []rune(key)
	if len(runes) > maxKeyRunes {
		key = string(runes[:maxKeyRunes])
	}
	return key
}

func (c *Cache) lookup(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).vec, true
}

// insert stores the vector and evicts the LRU entry when over
// capacity, all in one critical section.
func (c *Cache) insert(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).vec = vec
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, vec: vec})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		evicted := oldest.Value.(*entry)
		delete(c.entries, evicted.key)
		if c.logger != nil {
			c.logger.Debug("Evicted query embedding",
				zap.String("key", evicted.key),
				zap.Int("capacity", c.capacity),
			)
		}
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
