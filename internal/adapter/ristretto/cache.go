// Package ristretto implements the cache port with dgraph-io/ristretto,
// holding serialized project settings and team rosters in process.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// defaultTTL applies when a caller stores a value without one. Cached
// documents are refreshed from Postgres on miss, so a short bound is safe.
const defaultTTL = time.Minute

// minCost keeps the admission counters from degenerating on tiny budgets.
const minCost = 1 << 20

// Cache is a byte-value cache sized by total cost in bytes.
type Cache struct {
	c          *ristretto.Cache[string, []byte]
	defaultTTL time.Duration
}

// New creates a ristretto-backed cache with maxBytes of value budget.
// Entries here are small JSON documents, a few hundred bytes each, so the
// admission counters are provisioned for one entry per 256 bytes of budget.
func New(maxBytes int64) (*Cache, error) {
	if maxBytes < minCost {
		maxBytes = minCost
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxBytes / 256,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, defaultTTL: defaultTTL}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value with the given TTL, falling back to the default TTL
// when ttl is not positive. Admission is asynchronous; a value may not be
// visible immediately after Set.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until pending writes are admitted or rejected. It exists for
// callers that need read-your-write visibility, mainly tests.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
