package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRateLimiter(client, time.Hour), mr
}

func TestRedisRateLimiterCountAndRecord(t *testing.T) {
	limiter, _ := testLimiter(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	count, err := limiter.Count(ctx, 42, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Record(ctx, 42, now.Add(time.Duration(i)*time.Minute)))
	}

	count, err = limiter.Count(ctx, 42, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRedisRateLimiterTrimsExpiredEntries(t *testing.T) {
	limiter, _ := testLimiter(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, limiter.Record(ctx, 42, now.Add(-2*time.Hour)))
	require.NoError(t, limiter.Record(ctx, 42, now.Add(-30*time.Minute)))
	require.NoError(t, limiter.Record(ctx, 42, now))

	count, err := limiter.Count(ctx, 42, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "entries older than the window are trimmed")
}

func TestRedisRateLimiterIsolatesTenants(t *testing.T) {
	limiter, _ := testLimiter(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, limiter.Record(ctx, 1, now))
	require.NoError(t, limiter.Record(ctx, 2, now))
	require.NoError(t, limiter.Record(ctx, 2, now))

	count, err := limiter.Count(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = limiter.Count(ctx, 2, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRedisRateLimiterSetsExpiry(t *testing.T) {
	limiter, mr := testLimiter(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, limiter.Record(ctx, 42, now))
	ttl := mr.TTL("assistant_rate:42")
	assert.Greater(t, ttl, time.Hour, "idle tenant keys must expire on their own")
}

func TestRedisRateLimiterSurfacesErrors(t *testing.T) {
	limiter, mr := testLimiter(t)
	mr.Close()

	_, err := limiter.Count(context.Background(), 42, time.Now())
	assert.Error(t, err)
	assert.Error(t, limiter.Record(context.Background(), 42, time.Now()))
}
