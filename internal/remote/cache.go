package remote

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/kclinic/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// QueryCache holds remote query results for a bounded time
type QueryCache[V any] struct {
	entries *lru.Cache[string, cacheEntry[V]]
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

// NewQueryCache creates a cache holding at most size results for ttl each
func NewQueryCache[V any](size int, ttl time.Duration) (*QueryCache[V], error) {
	entries, err := lru.New[string, cacheEntry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &QueryCache[V]{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Get returns a fresh cached result
func (c *QueryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries.Get(key)
	if !ok {
		metrics.QueryCache.WithLabelValues("miss").Inc()
		return zero, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		metrics.QueryCache.WithLabelValues("miss").Inc()
		return zero, false
	}

	metrics.QueryCache.WithLabelValues("hit").Inc()
	return entry.value, true
}

// Add stores a result under key
func (c *QueryCache[V]) Add(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// InvalidatePrefix removes every result whose key starts with prefix
func (c *QueryCache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) && c.entries.Remove(key) {
			removed++
		}
	}
	if removed > 0 {
		metrics.QueryCache.WithLabelValues("invalidated").Add(float64(removed))
	}
	return removed
}

// Len returns the number of cached results, expired ones included
func (c *QueryCache[V]) Len() int {
	return c.entries.Len()
}
