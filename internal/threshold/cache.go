package threshold

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const tableKey = "table"

// Loader fetches and parses a fresh threshold table.
type Loader func(ctx context.Context) (Table, error)

// Cache keeps the last good table for a TTL so the thresholds command does
// not have to run every cycle. With a zero TTL every Get loads.
type Cache struct {
	ttl   time.Duration
	load  Loader
	store *cache.Cache
}

// NewCache wraps load with a TTL cache.
func NewCache(ttl time.Duration, load Loader) *Cache {
	cleanup := ttl * 2
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &Cache{
		ttl:   ttl,
		load:  load,
		store: cache.New(ttl, cleanup),
	}
}

// Get returns the cached table, loading it when absent or expired. The
// boolean reports whether the table came from the cache. A failed load
// is not cached.
func (c *Cache) Get(ctx context.Context) (Table, bool, error) {
	if c.ttl > 0 {
		if v, found := c.store.Get(tableKey); found {
			return v.(Table), true, nil
		}
	}

	table, err := c.load(ctx)
	if err != nil {
		return nil, false, err
	}
	if c.ttl > 0 {
		c.store.Set(tableKey, table, cache.DefaultExpiration)
	}
	return table, false, nil
}

// Invalidate drops the cached table.
func (c *Cache) Invalidate() {
	c.store.Delete(tableKey)
}
