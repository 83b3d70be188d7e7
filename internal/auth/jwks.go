package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// jwksCache fetches and caches parsed JWK sets, keyed by JWKS URL, with
// TTL equal to the owning provider's configured poll interval — the
// same LRU mechanism the operation cache (internal/operation) uses for
// its own prepared-operation entries.
type jwksCache struct {
	httpClient *http.Client

	mu      sync.Mutex
	entries *lru.Cache[string, *cachedSet]
}

type cachedSet struct {
	set       jwk.Set
	fetchedAt time.Time
	ttl       time.Duration
}

func (c *cachedSet) expired(now time.Time) bool {
	return now.Sub(c.fetchedAt) >= c.ttl
}

func newJWKSCache(httpClient *http.Client, size int) *jwksCache {
	if size <= 0 {
		size = 64
	}
	entries, _ := lru.New[string, *cachedSet](size)
	return &jwksCache{httpClient: httpClient, entries: entries}
}

// get returns the JWK set for url, fetching on a cache miss or an
// expired entry per §4.I: "JWKS is cached in a KV store with TTL = poll
// interval; on miss, fetch, parse, cache."
func (c *jwksCache) get(ctx context.Context, url string, pollInterval time.Duration) (jwk.Set, error) {
	c.mu.Lock()
	if entry, ok := c.entries.Get(url); ok && !entry.expired(time.Now()) {
		c.mu.Unlock()
		return entry.set, nil
	}
	c.mu.Unlock()

	set, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries.Add(url, &cachedSet{set: set, fetchedAt: time.Now(), ttl: pollInterval})
	c.mu.Unlock()

	return set, nil
}

func (c *jwksCache) fetch(ctx context.Context, url string) (jwk.Set, error) {
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	set, err := jwk.Fetch(ctx, url, jwk.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("auth: fetch JWKS from %s: %w", url, err)
	}
	return set, nil
}
