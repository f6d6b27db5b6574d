package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every rate-limit key in Redis.
const KeyPrefix = "frostbank:ratelimit:"

// RedisLimiter implements Limiter using Redis sorted sets and a sliding window.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
	log    *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// RedisOption customises a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithRedisClock overrides the limiter clock.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewRedisLimiter creates a Redis-backed Limiter implementation.
func NewRedisLimiter(client *redis.Client, log *slog.Logger, opts ...RedisOption) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	l := &RedisLimiter{
		client: client,
		now:    time.Now,
		log:    log.With(slog.String("component", "redis_limiter")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check evaluates the rate limit for a given key using a sliding window algorithm.
// Rejected attempts still occupy the window.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}

	now := l.now()
	if limit <= 0 {
		return &Result{Allowed: false, Remaining: 0, ResetAt: now.Add(window)}, nil
	}

	windowStart := now.Add(-window)
	redisKey := KeyPrefix + key

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%d", windowStart.UnixMilli()))
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.Expire(ctx, redisKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("rate limiter pipeline failed", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count, err := countCmd.Result()
	if err != nil {
		l.log.Error("rate limiter failed to read count", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("rate limit count: %w", err)
	}

	resetAt := now.Add(window)
	if oldest, err := oldestCmd.Result(); err == nil && len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).In(now.Location()).Add(window)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
