// Package ratelimit implements the gateway's sliding-window
// approximate rate limiter (memory and Redis backends), selected by
// `gateway.rate_limit.storage`.
package ratelimit

import (
	"context"
	"time"
)

// Limiter accepts or rejects a request against key's budget of limit
// requests per window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// windowCounts is the pair of counters the sliding-window approximation
// reads in one round-trip: the current window's count so far, and the
// immediately preceding window's final count.
type windowCounts struct {
	current  int
	previous int
}

// allowFraction implements §4.J's formula: `average = previous * (1 -
// fraction_into_window) + current; accept iff average < limit`.
func allowFraction(counts windowCounts, fractionIntoWindow float64, limit int) bool {
	average := float64(counts.previous)*(1-fractionIntoWindow) + float64(counts.current)
	return average < float64(limit)
}

func windowFraction(now time.Time, window time.Duration) (windowIndex int64, fraction float64) {
	if window <= 0 {
		return 0, 0
	}
	elapsed := now.UnixNano()
	windowNanos := window.Nanoseconds()
	windowIndex = elapsed / windowNanos
	fraction = float64(elapsed%windowNanos) / float64(windowNanos)
	return windowIndex, fraction
}
