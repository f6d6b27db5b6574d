package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every idempotency key in Redis.
const KeyPrefix = "frostbank:idempotency:"

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Store persists the status of a keyed request.
type Store interface {
	// Claim marks key as processing and reports whether this caller owns it.
	Claim(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	// Status returns the current status, or "" when the key is unknown.
	Status(ctx context.Context, key string) (string, error)
	Complete(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisStore keeps request status in plain Redis string keys.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log.With(slog.String("component", "idempotency_store")),
	}
}

func (s *RedisStore) Claim(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, redisKey(key), StatusProcessing, lockTTL).Result()
	if err != nil {
		s.log.Error("failed to claim idempotency key", slog.String("key", key), slog.Any("error", err))
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}

	return acquired, nil
}

func (s *RedisStore) Status(ctx context.Context, key string) (string, error) {
	status, err := s.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		s.log.Error("failed to read idempotency key", slog.String("key", key), slog.Any("error", err))
		return "", fmt.Errorf("read idempotency key: %w", err)
	}

	return status, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKey(key), StatusCompleted, ttl).Err(); err != nil {
		s.log.Error("failed to complete idempotency key", slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("complete idempotency key: %w", err)
	}

	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		s.log.Error("failed to release idempotency key", slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("release idempotency key: %w", err)
	}

	return nil
}

func redisKey(key string) string {
	return KeyPrefix + key
}
