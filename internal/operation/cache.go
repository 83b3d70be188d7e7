package operation

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the prepared-operation cache named in §3's "Operation (C)"
// lifecycle: created on first request for a key, looked up on
// subsequent ones, evicted LRU-style.
type Cache struct {
	entries *lru.Cache[string, *CachedOperation]
}

func NewCache(size int) *Cache {
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[string, *CachedOperation](size)
	return &Cache{entries: c}
}

func (c *Cache) Get(key string) (*CachedOperation, bool) {
	return c.entries.Get(key)
}

func (c *Cache) Put(key string, op *CachedOperation) {
	c.entries.Add(key, op)
}
