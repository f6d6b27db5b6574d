package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
	errors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/i18n"
	"github.com/Proton-105/frostbank/pkg/logger"
	"github.com/Proton-105/frostbank/pkg/metrics"
)

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler, translations *i18n.Manager) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(ctx context.Context, req *handlers.Request, res handlers.Responder) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler",
						slog.String("command", req.Command),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)

					appErr := errors.NewUnknownError(fmt.Errorf("panic recovered: %v", r))
					if errHandler != nil {
						appErr = errHandler.Handle(ctx, appErr)
					}

					if sendErr := notify(ctx, translations, req, res, appErr); sendErr != nil {
						log.Error("failed to notify user about panic", slog.Any("error", sendErr))
					}

					err = nil
				}
			}()

			return next(ctx, req, res)
		}
	}
}

// ErrorHandlingMiddleware logs handler failures and answers the caller privately with the
// translated message.
func ErrorHandlingMiddleware(errHandler *errors.Handler, translations *i18n.Manager, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}
	if errHandler == nil {
		errHandler = errors.NewHandler(log, false)
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(ctx context.Context, req *handlers.Request, res handlers.Responder) error {
			err := next(ctx, req, res)
			if err == nil {
				return nil
			}

			appErr := errHandler.Handle(ctx, err)
			metrics.RecordError(appErr.Code, string(appErr.Severity))

			if sendErr := notify(ctx, translations, req, res, appErr); sendErr != nil {
				log.Warn("failed to send error notice",
					slog.String("command", req.Command),
					slog.String("code", appErr.Code),
					slog.Any("error", sendErr),
				)
			}

			return nil
		}
	}
}

// LoggingMiddleware assigns a correlation id and logs basic telemetry about each command.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(ctx context.Context, req *handlers.Request, res handlers.Responder) error {
			ctx = logger.WithCorrelationID(ctx, "")
			start := time.Now()

			attrs := []any{
				slog.String("command", req.Command),
				slog.String("platform", req.Platform),
				slog.Int64("user_id", req.Caller.UserID),
				slog.Int64("channel_id", req.ChannelID),
				slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
			}

			log.InfoContext(ctx, "handling command", attrs...)
			err := next(ctx, req, res)
			log.InfoContext(ctx, "handled command", append(attrs,
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)...)

			return err
		}
	}
}

func notify(ctx context.Context, translations *i18n.Manager, req *handlers.Request, res handlers.Responder, appErr *errors.AppError) error {
	t := translations.Translator(req.Lang)
	return res.Send(ctx, handlers.Reply{
		Body:    t.Tf(appErr.UserMessage, appErr.Params),
		Private: true,
	})
}
