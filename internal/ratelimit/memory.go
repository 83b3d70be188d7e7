package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

// MemoryLimiter is the `memory` backend for `gateway.rate_limit.storage`:
// a process-local, lock-striped map generalizing the teacher's
// `schemaStore`/`atomic.Value` copy-on-write pattern (gateway/engine.go)
// to per-key mutable counters, which a single immutable snapshot can't
// represent.
type MemoryLimiter struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*bucket
}

type bucket struct {
	windowIndex int64
	current     int
	previous    int
}

func NewMemoryLimiter() *MemoryLimiter {
	m := &MemoryLimiter{}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*bucket)}
	}
	return m
}

func (m *MemoryLimiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// Allow implements §4.J's sliding-window approximation entirely
// in-process: the "one round-trip read" of current/previous counters
// collapses to one lock acquisition, and the asynchronous INCR becomes
// an in-place increment since there is no network hop to hide it behind.
func (m *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	s := m.shardFor(key)
	now := time.Now()
	idx, fraction := windowFraction(now, window)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.entries[key]
	if !ok {
		b = &bucket{windowIndex: idx}
		s.entries[key] = b
	}

	switch {
	case b.windowIndex == idx:
		// same window, nothing to roll.
	case b.windowIndex == idx-1:
		b.previous = b.current
		b.current = 0
		b.windowIndex = idx
	default:
		// more than one window elapsed since the last request: previous
		// has no bearing on the current rate any more.
		b.previous = 0
		b.current = 0
		b.windowIndex = idx
	}

	allowed := allowFraction(windowCounts{current: b.current, previous: b.previous}, fraction, limit)
	if allowed {
		b.current++
	}
	return allowed, nil
}
