package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is the `redis` backend for `gateway.rate_limit.storage`:
// current/previous counters live at `<prefix>:<key>:<windowIndex>` and
// `<prefix>:<key>:<windowIndex-1>`, each TTL'd to 2x the window so a
// crashed gateway never leaves a stale counter alive indefinitely.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: keyPrefix}
}

func (r *RedisLimiter) redisKey(key string, windowIndex int64) string {
	return fmt.Sprintf("%s:%s:%d", r.prefix, key, windowIndex)
}

// Allow pipelines the current/previous reads atomically, per §4.J, then
// fires the increment of the current counter as a best-effort
// asynchronous pipeline — a lost increment under contention only
// relaxes the limit slightly, never blocks the request on it.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	idx, fraction := windowFraction(time.Now(), window)
	currentKey := r.redisKey(key, idx)
	previousKey := r.redisKey(key, idx-1)

	pipe := r.client.Pipeline()
	currentCmd := pipe.Get(ctx, currentKey)
	previousCmd := pipe.Get(ctx, previousKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("ratelimit: read counters: %w", err)
	}

	current := readCountOrZero(currentCmd)
	previous := readCountOrZero(previousCmd)

	allowed := allowFraction(windowCounts{current: current, previous: previous}, fraction, limit)
	if allowed {
		go r.incrementAsync(currentKey, window)
	}
	return allowed, nil
}

func (r *RedisLimiter) incrementAsync(key string, window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*window)
	_, _ = pipe.Exec(ctx)
}

func readCountOrZero(cmd *redis.StringCmd) int {
	n, err := cmd.Int()
	if err != nil {
		return 0
	}
	return n
}
