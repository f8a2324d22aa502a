package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ErrLockHeld is returned by RunOnce when another runner holds the lock.
var ErrLockHeld = errors.New("housekeeping lock held elsewhere")

// ServiceParams configure the housekeeping loop.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.Jobs
	Interval time.Duration
	// JobTimeout bounds a single job run. Zero means the interval.
	JobTimeout time.Duration
}

// Service runs every registered job once per interval while holding the
// cluster-wide lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.Jobs
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry, _ = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout := params.JobTimeout
	if timeout <= 0 {
		timeout = interval
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: timeout,
		now:        time.Now,
	}, nil
}

// Run executes a cycle immediately, then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil && !errors.Is(err, ErrLockHeld) {
			s.logg.Error(ctx, "housekeeping cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "housekeeping loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs the named jobs, or all of them, a single time. Job failures
// are joined into the returned error.
func (s *Service) RunOnce(ctx context.Context, names ...string) error {
	jobs, err := s.registry.Select(names...)
	if err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		var errs []error
		for _, job := range jobs {
			if err := s.runJob(ctx, job); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
			}
		}
		return errors.Join(errs...)
	})
}

func (s *Service) runCycle(ctx context.Context) error {
	jobs, _ := s.registry.Select()
	return s.withLock(ctx, func() error {
		for _, job := range jobs {
			// failures are logged and counted; the next job still runs
			_ = s.runJob(ctx, job)
		}
		return nil
	})
}

func (s *Service) withLock(ctx context.Context, fn func() error) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Debug(ctx, "housekeeping lock held elsewhere; skipping cycle")
		return ErrLockHeld
	}
	defer func() {
		// release even when ctx was canceled mid-cycle
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release housekeeping lock", relErr)
		}
	}()
	return fn()
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   name,
		"event": "settlement.job",
	})
	runCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := s.now()
	var rows int64
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("job panicked: %v", p)
			}
		}()
		rows, err = job.Run(runCtx)
	}()
	duration := s.now().Sub(start)

	s.metrics.ObserveDuration(name, duration)
	s.metrics.AddAffected(name, rows)
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms":   duration.Milliseconds(),
		"rows_affected": rows,
	})
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(name)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(name)
	return nil
}
