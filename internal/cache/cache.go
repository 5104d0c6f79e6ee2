package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache is a small TTL cache in front of the remote market data sources
type Cache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

// New creates a Cache holding up to maxItems entries for ttl each. A ttl of
// zero disables caching.
func New(maxItems int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
		// every entry costs 1, so MaxCost is an entry count
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Get returns the cached value for key, if present and not expired
func (c *Cache) Get(key string) (any, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	return c.c.Get(key)
}

// Set stores val under key for the cache's ttl
func (c *Cache) Set(key string, val any) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.c.SetWithTTL(key, val, 1, c.ttl)
	// make the value visible to the next Get
	c.c.Wait()
}

// Close stops the cache's background goroutines
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.c.Close()
}
