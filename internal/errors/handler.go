package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/frostbank/pkg/logger"
)

// Handler logs errors, reports severe ones to Sentry and normalises them into AppErrors.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle records err and returns the AppError the caller should render. Errors outside the
// taxonomy are wrapped as unknown errors.
func (h *Handler) Handle(ctx context.Context, err error) *AppError {
	if err == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var appErr *AppError
	if !errors.As(err, &appErr) || appErr == nil {
		appErr = NewUnknownError(err)
	}

	attrs := []any{
		slog.String("code", appErr.Code),
		slog.String("message", appErr.Message),
		slog.String("severity", string(appErr.Severity)),
		slog.Bool("retryable", appErr.Retryable),
	}
	if cause := appErr.Unwrap(); cause != nil {
		attrs = append(attrs, slog.Any("error", cause))
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	switch appErr.Severity {
	case SeverityHigh, SeverityCritical:
		h.log.ErrorContext(ctx, "application error", attrs...)
		if h.sentryEnabled {
			h.sendToSentry(ctx, appErr)
		}
	case SeverityMedium:
		h.log.WarnContext(ctx, "application error", attrs...)
	default:
		h.log.InfoContext(ctx, "request denied", attrs...)
	}

	return appErr
}

func (h *Handler) sendToSentry(ctx context.Context, appErr *AppError) {
	sentry.WithScope(func(scope *sentry.Scope) {
		if appErr.Code != "" {
			scope.SetTag("code", appErr.Code)
		}
		if appErr.Severity != "" {
			scope.SetTag("severity", string(appErr.Severity))
		}
		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}

		var reported error = appErr
		if cause := appErr.Unwrap(); cause != nil {
			reported = cause
		}
		sentry.CaptureException(reported)
	})
}
