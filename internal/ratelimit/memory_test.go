package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/internal/ratelimit"
)

func TestMemoryLimiter_AllowsUpToLimitWithinWindow(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "client-a", 5, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed within the limit", i)
		}
	}

	allowed, err := limiter.Allow(ctx, "client-a", 5, time.Minute)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatalf("expected the 6th request over a limit of 5 to be rejected")
	}
}

func TestMemoryLimiter_TracksKeysIndependently(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "client-a", 3, time.Minute); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}

	allowed, err := limiter.Allow(ctx, "client-b", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !allowed {
		t.Fatalf("expected an unrelated key to have its own budget")
	}
}
