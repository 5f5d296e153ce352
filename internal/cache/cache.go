package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

const _TTL = time.Minute * 10

// Cache is a bounded in-process cache for read-mostly topology data.
type Cache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCache(ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,     // keys tracked for admission frequency
		MaxCost:     1 << 16, // one unit per entry
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = _TTL
	}
	return &Cache{cache: c, ttl: ttl}, nil
}

func (c *Cache) Set(key string, value interface{}) {
	c.cache.SetWithTTL(key, value, 1, c.ttl)
}

func (c *Cache) Get(key string) (interface{}, bool) {
	return c.cache.Get(key)
}

func (c *Cache) Del(key string) {
	c.cache.Del(key)
}

func (c *Cache) Close() {
	c.cache.Close()
}
