package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
	"github.com/Proton-105/frostbank/internal/idempotency"
)

// Idempotency ensures handlers execute at most once per platform interaction. Duplicate
// deliveries are dropped without a reply.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(ctx context.Context, req *handlers.Request, res handlers.Responder) error {
			key := idempotency.InteractionKey(req.Platform, req.InteractionID)
			if key == "" {
				return next(ctx, req, res)
			}

			err := manager.Execute(ctx, key, ttl, func(execCtx context.Context) error {
				return next(execCtx, req, res)
			})
			if errors.Is(err, idempotency.ErrRequestInProgress) || errors.Is(err, idempotency.ErrAlreadyProcessed) {
				log.Info("duplicate interaction dropped",
					slog.String("command", req.Command),
					slog.String("interaction_id", req.InteractionID),
					slog.Any("reason", err),
				)
				return nil
			}

			return err
		}
	}
}
