// Package entitycache implements the gateway's entity cache: a thin
// key/value facade (memory or Redis) with explicit TTL writes and no
// background eviction of its own — misses are authoritative, per §4.J.
package entitycache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is the tiered key/value facade entity cache backends implement.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache wraps a Store with single-flight backfill protection, so a
// cache stampede on a popular entity key only triggers one subgraph
// fetch instead of one per concurrent request.
type Cache struct {
	store Store
	group singleflight.Group
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// TTLHint resolves the effective TTL for a cached entity per §4.F step
// 3: the lesser of the subgraph-configured TTL, the response's
// `Cache-Control: max-age`, and its `Age` header (a response already
// partway through its max-age gets a shorter cache write).
func TTLHint(configured time.Duration, maxAge *time.Duration, age *time.Duration) time.Duration {
	ttl := configured
	if maxAge != nil && (*maxAge) < ttl {
		ttl = *maxAge
	}
	if age != nil {
		remaining := ttl - *age
		if remaining < ttl {
			ttl = remaining
		}
	}
	if ttl < 0 {
		ttl = 0
	}
	return ttl
}

// GetOrBackfill returns the cached value for key, or calls backfill to
// populate it on a miss. Concurrent callers for the same key share one
// backfill call.
func (c *Cache) GetOrBackfill(ctx context.Context, key string, ttl time.Duration, backfill func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok, err := c.store.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() ([]byte, error) {
		v, err := backfill(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, v, ttl); err != nil {
			return v, err
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}
