// Package mcpcache caches tool invocation results used during context
// assembly. Entries expire after a short TTL, and at most one fetch per key
// runs at a time; concurrent callers for the same key block on the winner's
// result instead of issuing duplicate fetches.
package mcpcache

import (
	"context"
	"sync"
	"time"

	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// FetchFunc produces a fresh value for a key.
type FetchFunc func(ctx context.Context) (string, error)

type entry struct {
	value     string
	fetchedAt time.Time
}

// Cache is a TTL result cache with per-key fetch exclusivity.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry
	inFetch map[string]*sync.Mutex
}

// NewCache creates a cache; ttl bounds how long fetched values are served.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		inFetch: make(map[string]*sync.Mutex),
	}
}

// GetOrFetch returns the cached value for key, or runs fetch to fill it.
// Only one fetch per key runs at a time; losers of the race re-check the
// cache after the winner finishes and reuse its result.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	if v, ok := c.get(key); ok {
		observer.IncToolCacheCheck("hit")
		return v, nil
	}

	keyMu := c.lockKey(key)
	keyMu.Lock()
	defer keyMu.Unlock()

	// Another caller may have filled the entry while this one waited.
	if v, ok := c.get(key); ok {
		observer.IncToolCacheCheck("hit")
		return v, nil
	}
	observer.IncToolCacheCheck("miss")

	value, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, fetchedAt: utils.Now()}
	c.mu.Unlock()

	return value, nil
}

// Invalidate drops a key so the next lookup refetches.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of live (unexpired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if utils.Now().Sub(e.fetchedAt) < c.ttl {
			n++
		}
	}
	return n
}

func (c *Cache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if utils.Now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		observer.IncToolCacheCheck("stale")
		return "", false
	}
	return e.value, true
}

// lockKey returns the per-key fetch mutex, creating it when absent. A
// refcount would let the map shrink; entries are few and keys recur, so the
// mutex stays for the cache's lifetime.
func (c *Cache) lockKey(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.inFetch[key]
	if !ok {
		mu = &sync.Mutex{}
		c.inFetch[key] = mu
	}
	return mu
}
