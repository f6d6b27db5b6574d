package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type slowJob struct {
	runs    atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newSlowJob() *slowJob {
	return &slowJob{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (j *slowJob) Name() string { return "slow" }

func (j *slowJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	j.started <- struct{}{}
	select {
	case <-j.release:
	case <-ctx.Done():
	}
	return nil
}

type panicJob struct{}

func (panicJob) Name() string { return "panic" }

func (panicJob) Run(context.Context) error { panic("boom") }

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
	s := NewScheduler(testLogger()).(*scheduler)
	job := newSlowJob()
	wrapped := s.wrap(job)

	done := make(chan struct{})
	go func() {
		wrapped.Run()
		close(done)
	}()
	<-job.started

	// The second tick arrives while the first is still running.
	wrapped.Run()
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.release)
	<-done

	go wrapped.Run()
	<-job.started
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := NewScheduler(testLogger()).(*scheduler)
	wrapped := s.wrap(panicJob{})

	assert.NotPanics(t, wrapped.Run)
}

func TestScheduler_RegisterTasks(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := NewScheduler(testLogger(), Task{Interval: time.Minute, Job: newSlowJob()})
		require.NoError(t, s.RegisterTasks())
		assert.Len(t, s.(*scheduler).cron.Entries(), 1)
	})

	t.Run("missing interval", func(t *testing.T) {
		s := NewScheduler(testLogger(), Task{Job: newSlowJob()})
		assert.Error(t, s.RegisterTasks())
	})

	t.Run("missing job", func(t *testing.T) {
		s := NewScheduler(testLogger(), Task{Interval: time.Minute})
		assert.Error(t, s.RegisterTasks())
	})
}

func TestScheduler_ShutdownCancelsRunningJobs(t *testing.T) {
	s := NewScheduler(testLogger()).(*scheduler)
	job := newSlowJob()

	s.Run()
	go s.wrap(job).Run()
	<-job.started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.True(t, errors.Is(s.ctx.Err(), context.Canceled))
}
