package remote

import (
	"context"
	"time"
)

// QueuePrefix namespaces cached day-queue results
const QueuePrefix = "queue"

// CachedClient serves remote queries from a QueryCache when possible
type CachedClient struct {
	client *Client
	cache  *QueryCache[[]QueueEntry]
}

// NewCachedClient wraps client with a cache of size results living ttl
func NewCachedClient(client *Client, size int, ttl time.Duration) (*CachedClient, error) {
	cache, err := NewQueryCache[[]QueueEntry](size, ttl)
	if err != nil {
		return nil, err
	}
	return &CachedClient{client: client, cache: cache}, nil
}

// ListQueue returns the day's queue, from cache when fresh
func (c *CachedClient) ListQueue(ctx context.Context, day time.Time) ([]QueueEntry, error) {
	key := QueuePrefix + ":" + day.Format("2006-01-02")

	if entries, ok := c.cache.Get(key); ok {
		return append([]QueueEntry(nil), entries...), nil
	}

	entries, err := c.client.ListQueue(ctx, day)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, entries)

	return append([]QueueEntry(nil), entries...), nil
}

// InvalidatePrefix drops cached results whose key starts with prefix
func (c *CachedClient) InvalidatePrefix(prefix string) int {
	return c.cache.InvalidatePrefix(prefix)
}
