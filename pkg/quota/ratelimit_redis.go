package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisRateLimiter keeps the trailing-window request counts in a Redis
// sorted set per tenant, scored by request time. It is the shared hot path
// across instances; errors are surfaced to the caller, which falls back to
// the Postgres request log.
type RedisRateLimiter struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisRateLimiter creates a limiter over the given window
func NewRedisRateLimiter(client *redis.Client, window time.Duration) *RedisRateLimiter {
	if window <= 0 {
		window = RateLimitWindow
	}
	return &RedisRateLimiter{
		client: client,
		window: window,
		prefix: "assistant_rate",
	}
}

func (r *RedisRateLimiter) key(tenantID int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, tenantID)
}

// Count returns how many recorded requests fall inside the trailing window.
// Entries older than the window are trimmed on every call.
func (r *RedisRateLimiter) Count(ctx context.Context, tenantID int64, now time.Time) (int64, error) {
	key := r.key(tenantID)
	cutoff := now.Add(-r.window).UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count rate limit window: %w", err)
	}
	return card.Val(), nil
}

// Record adds one request at the given time. The key expires a full window
// after the newest entry so idle tenants cost nothing.
func (r *RedisRateLimiter) Record(ctx context.Context, tenantID int64, at time.Time) error {
	key := r.key(tenantID)

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(at.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, r.window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record request in rate limit window: %w", err)
	}
	return nil
}
