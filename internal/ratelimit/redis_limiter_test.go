package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/frostbank/pkg/config"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2024, 12, 24, 20, 0, 0, 0, time.UTC)}
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:allows", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 5-(i+1), result.Remaining)
	}
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:blocks", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i < 2, result.Allowed, "attempt %d", i)
	}
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	_, client := setupTestRedis(t)
	clk := newClock()
	limiter := NewRedisLimiter(client, testLogger(), WithRedisClock(clk.Now))
	ctx := context.Background()

	first, err := limiter.Check(ctx, "test:window", 2, time.Second)
	require.NoError(t, err)
	assert.WithinDuration(t, clk.now.Add(time.Second), first.ResetAt, 0)

	clk.Advance(400 * time.Millisecond)
	second, err := limiter.Check(ctx, "test:window", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.WithinDuration(t, first.ResetAt, second.ResetAt, 0, "reset follows the oldest entry")

	clk.Advance(100 * time.Millisecond)
	blocked, err := limiter.Check(ctx, "test:window", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)
	assert.Equal(t, 1, blocked.RetryAfter(clk.now))

	clk.Advance(1100 * time.Millisecond)
	result, err := limiter.Check(ctx, "test:window", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiter_ZeroLimitRejects(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())

	result, err := limiter.Check(context.Background(), "test:zero", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	clk := newClock()
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = clk.Now
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "user", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		clk.Advance(10 * time.Second)
	}

	blocked, err := limiter.Check(ctx, "user", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)
	assert.Equal(t, 40, blocked.RetryAfter(clk.now))

	clk.Advance(41 * time.Second)
	result, err := limiter.Check(ctx, "user", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	clk := newClock()
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = clk.Now

	_, err := limiter.Check(context.Background(), "idle", 1, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 0, limiter.Cleanup(time.Hour))
	clk.Advance(2 * time.Hour)
	assert.Equal(t, 1, limiter.Cleanup(time.Hour))
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, assert.AnError
}

func TestAdaptiveLimiter_FallsBackWithHalfLimit(t *testing.T) {
	limiter := NewAdaptiveLimiter(failingLimiter{}, NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "user", 4, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "user", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
}

func TestAdaptiveLimiter_PrimaryRejection(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	_, err := limiter.Check(ctx, "user", 1, time.Minute)
	require.NoError(t, err)

	_, err = limiter.Check(ctx, "user", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestCleaner_RemovesExpiredWindows(t *testing.T) {
	mr, client := setupTestRedis(t)
	clk := newClock()
	limiter := NewRedisLimiter(client, testLogger(), WithRedisClock(clk.Now))
	ctx := context.Background()

	_, err := limiter.Check(ctx, "stale", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists(KeyPrefix+"stale"))

	cleaner := NewCleaner(client, nil, time.Minute, 5*time.Minute, testLogger())
	cleaner.now = func() time.Time { return clk.now.Add(10 * time.Minute) }

	assert.Equal(t, 1, cleaner.Cleanup(ctx))
	assert.False(t, mr.Exists(KeyPrefix+"stale"))
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		PerUser: config.RateLimitRule{Limit: 20, Window: "1m"},
		Commands: config.RateLimitCommands{
			Transfer: config.RateLimitRule{Limit: 5, Window: "30s"},
			Export:   config.RateLimitRule{Limit: 1, Window: ""},
		},
		Whitelist: []int64{42},
	})

	limit, window, err := rules.GetCommandLimit("transfer")
	require.NoError(t, err)
	assert.Equal(t, 5, limit)
	assert.Equal(t, 30*time.Second, window)

	_, _, err = rules.GetCommandLimit("balance")
	assert.ErrorIs(t, err, ErrNoRule)

	_, _, err = rules.GetCommandLimit("grant")
	assert.ErrorIs(t, err, ErrNoRule)

	_, _, err = rules.GetCommandLimit("export")
	assert.Error(t, err)

	limit, window, err = rules.GetPerUserLimit()
	require.NoError(t, err)
	assert.Equal(t, 20, limit)
	assert.Equal(t, time.Minute, window)

	assert.True(t, rules.IsWhitelisted(42))
	assert.False(t, rules.IsWhitelisted(7))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
