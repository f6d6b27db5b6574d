package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes idempotency keys that lost their expiry.
type Cleaner struct {
	client   *redis.Client
	interval time.Duration
	maxTTL   time.Duration
	log      *slog.Logger
}

// NewCleaner builds a cleaner. Keys without a TTL, or with one above maxTTL, are deleted.
func NewCleaner(client *redis.Client, interval, maxTTL time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client:   client,
		interval: interval,
		maxTTL:   maxTTL,
		log:      log.With(slog.String("component", "idempotency_cleaner")),
	}
}

func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.client == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup performs one sweep and returns the number of deleted keys.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	var (
		cursor  uint64
		err     error
		removed int
	)

	for {
		var keys []string
		keys, cursor, err = c.client.Scan(ctx, cursor, KeyPrefix+"*", 100).Result()
		if err != nil {
			c.log.Error("idempotency cleaner scan failed", slog.Any("error", err))
			return removed
		}

		for _, key := range keys {
			ttl, err := c.client.TTL(ctx, key).Result()
			if err != nil {
				c.log.Warn("failed to get key ttl", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if ttl >= 0 && (c.maxTTL <= 0 || ttl <= c.maxTTL) {
				continue
			}
			if err := c.client.Del(ctx, key).Err(); err != nil {
				c.log.Warn("failed to delete stale idempotency key", slog.String("key", key), slog.Any("error", err))
				continue
			}
			removed++
		}

		if cursor == 0 {
			break
		}
	}

	if removed > 0 {
		c.log.Info("idempotency keys cleaned", slog.Int("keys_removed", removed))
	}
	return removed
}
