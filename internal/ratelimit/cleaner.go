package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner periodically trims stale rate-limit windows in Redis and drops idle in-memory
// buckets.
type Cleaner struct {
	redisClient *redis.Client
	memory      *MemoryLimiter
	interval    time.Duration
	maxAge      time.Duration
	now         func() time.Time
	log         *slog.Logger
}

// NewCleaner constructs a Cleaner instance. maxAge should be at least the longest
// configured window.
func NewCleaner(client *redis.Client, memory *MemoryLimiter, interval, maxAge time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}

	return &Cleaner{
		redisClient: client,
		memory:      memory,
		interval:    interval,
		maxAge:      maxAge,
		now:         time.Now,
		log:         log.With(slog.String("component", "ratelimit_cleaner")),
	}
}

// Run starts the cleaner loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup performs one sweep and returns the number of Redis keys removed.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	if c.memory != nil {
		if n := c.memory.Cleanup(c.maxAge); n > 0 {
			c.log.Debug("memory buckets cleaned", slog.Int("buckets_removed", n))
		}
	}

	if c.redisClient == nil || ctx.Err() != nil {
		return 0
	}

	const scanCount = 100
	pattern := KeyPrefix + "*"
	cutoff := c.now().Add(-c.maxAge).UnixMilli()

	var cursor uint64
	cleaned := 0

	for {
		keys, nextCursor, err := c.redisClient.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			c.log.Error("rate limit scan failed", slog.Any("error", err))
			return cleaned
		}

		for _, key := range keys {
			pipe := c.redisClient.TxPipeline()
			pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
			cardCmd := pipe.ZCard(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				c.log.Warn("cleanup pipeline failed", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if cardCmd.Val() > 0 {
				continue
			}
			if err := c.redisClient.Del(ctx, key).Err(); err != nil {
				c.log.Warn("failed to delete empty rate limit key", slog.String("key", key), slog.Any("error", err))
				continue
			}
			cleaned++
		}

		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}

	if cleaned > 0 {
		c.log.Info("rate limit keys cleaned", slog.Int("keys_removed", cleaned))
	}
	return cleaned
}
