package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Proton-105/frostbank/internal/health"
)

// ErrNotReady is returned by Readiness when a dependency check fails.
var ErrNotReady = errors.New("service is not ready")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) (map[string]string, error)
}

// Probes answers the process probes from the dependency checker.
type Probes struct {
	checker *health.Checker
	log     *slog.Logger
}

// NewProbes creates a new Probes instance.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

// Liveness succeeds while the process can serve HTTP.
func (p *Probes) Liveness(context.Context) error {
	p.log.Debug("liveness probe called")
	return nil
}

// Readiness runs every dependency check and fails when any of them fails.
func (p *Probes) Readiness(ctx context.Context) (map[string]string, error) {
	if p.checker == nil {
		return map[string]string{}, nil
	}

	results := p.checker.Check(ctx)
	if !health.Healthy(results) {
		return results, ErrNotReady
	}
	return results, nil
}
