// Package settingscache caches the channel allow-list and manager roles in Redis.
package settingscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Kind names one cached settings set.
type Kind string

const (
	KindAllowedChannels Kind = "allowed_channels"
	KindManagerRoles    Kind = "manager_roles"
)

var errStaleGeneration = errors.New("settings changed while loading")

// Cache provides Redis-backed caching for settings id sets.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a settings cache backed by the provided Redis client. A nil client
// disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get fetches a cached id set. The boolean is false on a cache miss.
func (c *Cache) Get(ctx context.Context, kind Kind) ([]int64, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, cacheKey(kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached %s: %w", kind, err)
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false, fmt.Errorf("decode cached %s: %w", kind, err)
	}

	return ids, true, nil
}

// Generation returns the write generation of kind. Every Invalidate bumps it.
func (c *Cache) Generation(ctx context.Context, kind Kind) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}

	gen, err := c.client.Get(ctx, generationKey(kind)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get %s generation: %w", kind, err)
	}
	return gen, nil
}

// SetIfGeneration stores an id set for the configured TTL unless kind was invalidated since
// generation was read. The boolean reports whether the set was stored.
func (c *Cache) SetIfGeneration(ctx context.Context, kind Kind, ids []int64, generation int64) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	if ids == nil {
		ids = []int64{}
	}

	payload, err := json.Marshal(ids)
	if err != nil {
		return false, fmt.Errorf("encode %s for cache: %w", kind, err)
	}

	genKey := generationKey(kind)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(kind), payload, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("set cached %s: %w", kind, err)
	}
}

// Invalidate removes the cached set and bumps its generation so that in-flight reads of
// the old set are not stored.
func (c *Cache) Invalidate(ctx context.Context, kind Kind) error {
	if c == nil || c.client == nil {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(kind))
		pipe.Del(ctx, cacheKey(kind))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete cached %s: %w", kind, err)
	}

	return nil
}

func cacheKey(kind Kind) string {
	return fmt.Sprintf("frostbank:settings:%s", kind)
}

func generationKey(kind Kind) string {
	return cacheKey(kind) + ":gen"
}
