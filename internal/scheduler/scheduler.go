// Package scheduler runs the periodic batch jobs. Each run holds a named lock
// so only one worker process executes a job at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Job names and schedules
const (
	JobCommitmentSettlement = "commitment-settlement"
	JobSharkWeeklyAudit     = "shark-weekly-audit"

	SpecCommitmentSettlement = "@hourly"
	SpecSharkWeeklyAudit     = "0 6 * * 1"
)

// ErrUnknownJob is returned by RunNow for names that were never added.
var ErrUnknownJob = errors.New("unknown job")

type Config struct {
	Locker  Locker
	LockTTL time.Duration
	// Location for cron specs; UTC when nil.
	Location *time.Location
}

type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	lockTTL time.Duration
	jobs    map[string]func(context.Context) error
	ctx     context.Context
	cancel  context.CancelFunc
	skipped atomic.Int64
}

func New(cfg Config) *Scheduler {
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		locker:  cfg.Locker,
		lockTTL: cfg.LockTTL,
		jobs:    map[string]func(context.Context) error{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a job under a cron spec.
func (s *Scheduler) Add(name, spec string, run func(context.Context) error) error {
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunNow(s.ctx, name); err != nil {
			slog.ErrorContext(s.ctx, "Scheduled job failed", "component", "scheduler", "job", name, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.jobs[name] = run
	slog.Info("Job scheduled", "component", "scheduler", "job", name, "spec", spec)
	return nil
}

// RunNow runs the job under its lock. ran is false when another run holds
// the lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) (ran bool, err error) {
	run, ok := s.jobs[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	release, ok, err := s.locker.Acquire(ctx, name, s.lockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		s.skipped.Add(1)
		slog.InfoContext(ctx, "Job skipped, lock held elsewhere", "component", "scheduler", "job", name)
		return false, nil
	}
	defer func() {
		// release with a fresh context so a cancelled run still frees the lock
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := release(rctx); rerr != nil {
			slog.WarnContext(ctx, "Failed to release job lock", "component", "scheduler", "job", name, "error", rerr)
		}
	}()

	start := time.Now()
	slog.InfoContext(ctx, "Job started", "component", "scheduler", "job", name)
	err = run(ctx)
	slog.InfoContext(ctx, "Job finished",
		"component", "scheduler",
		"job", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil)
	return true, err
}

// Skipped counts runs that found the lock held.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started", "component", "scheduler", "jobs", len(s.jobs))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped", "component", "scheduler")
}

// BatchResult summarizes a per-user fan-out.
type BatchResult struct {
	Processed int64
	Failed    int64
}

// ForEachUser calls fn for every user with at most concurrency calls in
// flight. A failing user is logged and counted; the batch carries on.
func ForEachUser(ctx context.Context, job string, users []int64, concurrency int, fn func(ctx context.Context, userID int64) error) BatchResult {
	var processed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))

	for _, id := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(ctx, id); err != nil {
				failed.Add(1)
				slog.ErrorContext(ctx, "Batch item failed",
					"component", "scheduler",
					"job", job,
					"user_id", id,
					"error", err)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return BatchResult{Processed: processed.Load(), Failed: failed.Load()}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug(msg, append([]any{"component", "scheduler"}, keysAndValues...)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error(msg, append([]any{"component", "scheduler", "error", err}, keysAndValues...)...)
}
