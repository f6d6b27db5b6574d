package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user and per-command rate limits.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	now     func() time.Time
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		now:     time.Now,
		log:     log.With(slog.String("component", "ratelimit_middleware")),
	}
}

// Handle returns a middleware rejecting callers over their limit with a rate-limit error.
// Limiter failures let the command through.
func (m *RateLimitMiddleware) Handle(next handlers.Handler) handlers.Handler {
	return func(ctx context.Context, req *handlers.Request, res handlers.Responder) error {
		if m.limiter == nil || m.rules == nil {
			return next(ctx, req, res)
		}

		userID := req.Caller.UserID
		if m.rules.IsWhitelisted(userID) {
			return next(ctx, req, res)
		}

		if limit, window, err := m.rules.GetPerUserLimit(); err == nil {
			if rejected := m.check(ctx, fmt.Sprintf("user:%d", userID), limit, window); rejected != nil {
				return rejected
			}
		} else if !errors.Is(err, ratelimit.ErrNoRule) {
			m.log.Error("failed to load per-user rate limit", slog.Int64("user_id", userID), slog.Any("error", err))
		}

		if limit, window, err := m.rules.GetCommandLimit(req.Command); err == nil {
			key := fmt.Sprintf("cmd:%s:%d", req.Command, userID)
			if rejected := m.check(ctx, key, limit, window); rejected != nil {
				return rejected
			}
		} else if !errors.Is(err, ratelimit.ErrNoRule) {
			m.log.Error("failed to load command rate limit", slog.String("command", req.Command), slog.Any("error", err))
		}

		return next(ctx, req, res)
	}
}

func (m *RateLimitMiddleware) check(ctx context.Context, key string, limit int, window time.Duration) error {
	result, err := m.limiter.Check(ctx, key, limit, window)
	if result != nil && !result.Allowed {
		m.log.Warn("rate limit exceeded", slog.String("key", key))
		return apperrors.NewRateLimitError(result.RetryAfter(m.now()))
	}
	if err != nil {
		m.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}
