package entitycache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/internal/entitycache"
)

func TestCache_GetOrBackfill_CachesAcrossCalls(t *testing.T) {
	store := entitycache.NewMemoryStore()
	cache := entitycache.New(store)

	var calls int32
	backfill := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("product-1"), nil
	}

	v1, err := cache.GetOrBackfill(context.Background(), "Product:1", time.Minute, backfill)
	if err != nil {
		t.Fatalf("GetOrBackfill: %v", err)
	}
	v2, err := cache.GetOrBackfill(context.Background(), "Product:1", time.Minute, backfill)
	if err != nil {
		t.Fatalf("GetOrBackfill: %v", err)
	}

	if string(v1) != "product-1" || string(v2) != "product-1" {
		t.Fatalf("unexpected values: %q, %q", v1, v2)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one backfill call, got %d", calls)
	}
}

func TestCache_GetOrBackfill_CoalescesConcurrentMisses(t *testing.T) {
	store := entitycache.NewMemoryStore()
	cache := entitycache.New(store)

	var calls int32
	release := make(chan struct{})
	backfill := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("product-1"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetOrBackfill(context.Background(), "Product:1", time.Minute, backfill); err != nil {
				t.Errorf("GetOrBackfill: %v", err)
			}
		}()
	}

	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected concurrent misses on the same key to coalesce into one backfill, got %d calls", calls)
	}
}

func TestMemoryStore_MissAfterTTLExpires(t *testing.T) {
	store := entitycache.NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected a miss once the TTL has expired")
	}
}

func TestTTLHint_UsesLeastOfConfiguredMaxAgeAndAge(t *testing.T) {
	maxAge := 30 * time.Second
	age := 10 * time.Second

	got := entitycache.TTLHint(time.Minute, &maxAge, &age)
	want := 20 * time.Second
	if got != want {
		t.Fatalf("TTLHint = %v, want %v", got, want)
	}
}
