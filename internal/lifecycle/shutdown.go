// Package lifecycle coordinates process probes, the ops HTTP surface and graceful shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Shutdown stages run in ascending order. Hooks of the same stage run concurrently.
const (
	StageIngress = iota // stop accepting chat traffic and HTTP requests
	StageWorkers        // stop background jobs and drain in-flight work
	StageOutbound       // flush publishers
	StageStorage        // close database and cache connections
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Stage int
	Fn    func(ctx context.Context) error
}

// Shutdown coordinates graceful shutdown hooks.
type Shutdown struct {
	mu    sync.Mutex
	hooks []Hook
	log   *slog.Logger
}

// NewShutdown constructs a new Shutdown coordinator.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}

	return &Shutdown{log: log.With(slog.String("component", "shutdown"))}
}

// Register adds a named shutdown hook to a stage.
func (s *Shutdown) Register(stage int, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, Hook{Name: name, Stage: stage, Fn: fn})
}

// Execute runs the stages in order and waits for each to complete. Failures are collected
// and do not stop later stages.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	slices.SortStableFunc(hooks, func(a, b Hook) int { return a.Stage - b.Stage })

	start := time.Now()
	s.log.Info("shutdown sequence started", slog.Int("hook_count", len(hooks)))

	var errs []string
	for i := 0; i < len(hooks); {
		j := i
		for j < len(hooks) && hooks[j].Stage == hooks[i].Stage {
			j++
		}
		errs = append(errs, s.runStage(ctx, hooks[i:j])...)
		i = j
	}

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)))

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (s *Shutdown) runStage(ctx context.Context, hooks []Hook) []string {
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []string
	)

	for _, h := range hooks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			s.log.Info("running shutdown hook", slog.String("hook", h.Name), slog.Int("stage", h.Stage))

			if err := h.Fn(ctx); err != nil {
				s.log.Error("shutdown hook failed", slog.String("hook", h.Name), slog.Any("error", err))
				errMu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", h.Name, err))
				errMu.Unlock()
				return
			}

			s.log.Info("shutdown hook completed", slog.String("hook", h.Name))
		}()
	}

	wg.Wait()
	return errs
}
