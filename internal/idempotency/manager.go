// Package idempotency guarantees that a redelivered chat interaction is executed once.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	ErrRequestInProgress = errors.New("request with this key is already in progress")
	ErrAlreadyProcessed  = errors.New("request with this key was already processed")
)

// DefaultLockTTL bounds how long an unfinished request blocks its key.
const DefaultLockTTL = 5 * time.Minute

// Operation is the work guarded by a key.
type Operation func(ctx context.Context) error

// Manager runs operations at most once per key.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) error
}

type manager struct {
	store   Store
	lockTTL time.Duration
	log     *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		lockTTL: DefaultLockTTL,
		log:     log.With(slog.String("component", "idempotency")),
	}
}

// Execute claims key and runs fn. A failed fn releases the key so the request can be
// retried. Store failures do not block fn.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) error {
	if fn == nil {
		return errors.New("operation fn cannot be nil")
	}

	claimed, err := m.store.Claim(ctx, key, m.lockTTL)
	if err != nil {
		m.log.Warn("idempotency store unavailable, executing without guard", slog.String("key", key), slog.Any("error", err))
		return fn(ctx)
	}

	if !claimed {
		status, err := m.store.Status(ctx, key)
		if err != nil {
			m.log.Warn("idempotency status unavailable", slog.String("key", key), slog.Any("error", err))
			return ErrRequestInProgress
		}

		switch status {
		case StatusCompleted:
			return ErrAlreadyProcessed
		case StatusProcessing:
			return ErrRequestInProgress
		default:
			// expired between claim and read; try once more
			if claimed, err = m.store.Claim(ctx, key, m.lockTTL); err != nil || !claimed {
				return ErrRequestInProgress
			}
		}
	}

	if err := fn(ctx); err != nil {
		if releaseErr := m.store.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			m.log.Warn("failed to release idempotency key", slog.String("key", key), slog.Any("error", releaseErr))
		}
		return err
	}

	if err := m.store.Complete(context.WithoutCancel(ctx), key, ttl); err != nil {
		m.log.Warn("failed to mark request completed", slog.String("key", key), slog.Any("error", err))
	}

	return nil
}
