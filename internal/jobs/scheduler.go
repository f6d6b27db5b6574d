// Package jobs runs the bot's recurring background work.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of recurring work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Task binds a Job to its period.
type Task struct {
	Interval time.Duration
	Job      Job
}

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown(ctx context.Context) error
}

type scheduler struct {
	cron  *cron.Cron
	chain cron.Chain
	tasks []Task
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler for tasks. A tick that fires while the previous run of the
// same task is still going is skipped, and panics inside a job are recovered and logged.
func NewScheduler(log *slog.Logger, tasks ...Task) Scheduler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "scheduler"))

	cronLog := cronLogger{log: log}
	chain := cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))
	ctx, cancel := context.WithCancel(context.Background())

	return &scheduler{
		cron:   cron.New(cron.WithLogger(cronLog)),
		chain:  chain,
		tasks:  tasks,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *scheduler) RegisterTasks() error {
	for _, task := range s.tasks {
		if task.Job == nil {
			return errors.New("scheduler: task without job")
		}
		if task.Interval <= 0 {
			return fmt.Errorf("scheduler: task %s has no interval", task.Job.Name())
		}

		if _, err := s.cron.AddJob(fmt.Sprintf("@every %s", task.Interval), s.wrap(task.Job)); err != nil {
			return fmt.Errorf("scheduler: register %s: %w", task.Job.Name(), err)
		}

		s.log.Info("registered task", slog.String("task", task.Job.Name()), slog.Duration("interval", task.Interval))
	}

	return nil
}

func (s *scheduler) Run() {
	s.log.Info("scheduler: starting")
	s.cron.Start()
}

// Shutdown stops new ticks and waits for running jobs until ctx expires, then cancels them.
func (s *scheduler) Shutdown(ctx context.Context) error {
	s.log.Info("scheduler: shutting down")

	stopped := s.cron.Stop()
	defer s.cancel()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wrap adapts job to cron behind the recover and skip-if-running chain. Runs share the
// scheduler context, which Shutdown cancels.
func (s *scheduler) wrap(job Job) cron.Job {
	return s.chain.Then(cron.FuncJob(func() {
		start := time.Now()
		if err := job.Run(s.ctx); err != nil {
			s.log.Warn("task failed",
				slog.String("task", job.Name()),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)
			return
		}

		s.log.Debug("task finished", slog.String("task", job.Name()), slog.Duration("duration", time.Since(start)))
	}))
}

// cronLogger routes cron's internal logging into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}
