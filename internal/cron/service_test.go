package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type countingJob struct {
	name string
	rows int64
	err  error
	runs int
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(context.Context) (int64, error) {
	c.runs++
	return c.rows, c.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobs(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &countingJob{name: "stale-payments", rows: 3}
	failing := &countingJob{name: "outbox-retention", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestService(t, lock, ok, failing)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
	if lock.releases != 1 || lock.held {
		t.Fatalf("expected lock released after cycle")
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "stale-payments"}
	service := newTestService(t, &fakeLock{held: true}, job)

	if err := service.runCycle(context.Background()); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
}

func TestRunCycleSurfacesLockError(t *testing.T) {
	service := newTestService(t, &fakeLock{err: errors.New("redis down")})
	if err := service.runCycle(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "stale-payments"}
	service := newTestService(t, &fakeLock{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected initial cycle to run once, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected missing logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "x"})}); err == nil {
		t.Fatal("expected missing lock error")
	}
}

type panickingJob struct{}

func (panickingJob) Name() string { return "explodes" }

func (panickingJob) Run(context.Context) (int64, error) { panic("nil map") }

func TestRunOnceSelectsJobsAndJoinsFailures(t *testing.T) {
	stale := &countingJob{name: "stale-payments", rows: 2}
	retention := &countingJob{name: "outbox-retention", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestService(t, lock, stale, retention, panickingJob{})

	require.NoError(t, service.RunOnce(context.Background(), "stale-payments"))
	assert.Equal(t, 1, stale.runs)
	assert.Equal(t, 0, retention.runs)

	err := service.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox-retention: boom")
	assert.Contains(t, err.Error(), "explodes: job panicked")
	assert.Equal(t, 2, lock.releases)

	assert.Error(t, service.RunOnce(context.Background(), "unknown"))
}
