package middleware

import (
	"context"
	"time"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
	"github.com/Proton-105/frostbank/pkg/metrics"
)

// Metrics measures execution time and status for bot commands, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(ctx context.Context, req *handlers.Request, res handlers.Responder) error {
		start := time.Now()
		err := next(ctx, req, res)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(req.Command, status, time.Since(start))

		return err
	}
}
