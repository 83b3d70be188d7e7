package operation

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// APQCache remembers query text by its sha256 hash once a client has
// sent it in full, so subsequent requests can send the hash alone.
type APQCache struct {
	entries *lru.Cache[string, string]
}

func NewAPQCache(size int) *APQCache {
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[string, string](size)
	return &APQCache{entries: c}
}

func (c *APQCache) Get(hash string) (string, bool) {
	return c.entries.Get(hash)
}

func (c *APQCache) Put(hash, query string) {
	c.entries.Add(hash, query)
}
