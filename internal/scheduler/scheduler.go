// Package scheduler manages named recurring indexing jobs. Job definitions
// persist in the index store; schedules use standard five-field cron
// expressions. Triggers that arrive while the same job is still running are
// skipped, never queued.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"roserade/internal/config"
	"roserade/internal/store"
)

// Job run outcomes.
const (
	OutcomeRan     = "ran"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// RunFunc executes one indexing job. A non-nil error means the run failed;
// a run where any file failed should report an error.
type RunFunc func(ctx context.Context, job store.Job) error

// JobOutcome reports what happened to one due job during RunDue.
type JobOutcome struct {
	Name    string
	Outcome string
	Err     error
}

// Scheduler owns the job registry and the run loop.
type Scheduler struct {
	store       *store.Store
	run         RunFunc
	maxFailures int
	logger      *slog.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

// New creates a Scheduler backed by the given store.
func New(st *store.Store, run RunFunc, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:       st,
		run:         run,
		maxFailures: cfg.MaxConsecutiveFailures,
		logger:      logger,
		running:     make(map[string]struct{}),
	}
}

// Register validates the cron expression and persists a new enabled job. The
// first run is scheduled at the expression's next activation from now.
func (s *Scheduler) Register(ctx context.Context, name, path, schedule string, opts store.JobOptions) (*store.Job, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	next := sched.Next(time.Now())
	job := &store.Job{
		Name:     name,
		Path:     path,
		Schedule: schedule,
		Enabled:  true,
		NextRun:  &next,
		Options:  opts,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "registered job", "name", name, "path", path, "schedule", schedule, "next_run", next)
	return job, nil
}

// Deregister removes a job by name.
func (s *Scheduler) Deregister(ctx context.Context, name string) error {
	return s.store.DeleteJob(ctx, name)
}

// List returns all jobs ordered by name.
func (s *Scheduler) List(ctx context.Context) ([]store.Job, error) {
	return s.store.ListJobs(ctx)
}

// SetEnabled enables or disables a job. A re-enabled job keeps its stored
// next_run; if that time already passed it runs at the next poll.
func (s *Scheduler) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return s.store.SetJobEnabled(ctx, name, enabled)
}

// RunDue executes every enabled job whose next_run is at or before now. Jobs
// run sequentially within one call; a job still running from a previous
// trigger is skipped. Returns one outcome per due job.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) ([]JobOutcome, error) {
	due, err := s.store.DueJobs(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}

	outcomes := make([]JobOutcome, 0, len(due))
	for _, job := range due {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		if !s.tryAcquire(job.Name) {
			s.logger.DebugContext(ctx, "skipping job, previous run still active", "name", job.Name)
			outcomes = append(outcomes, JobOutcome{Name: job.Name, Outcome: OutcomeSkipped})
			continue
		}
		outcome := s.runOne(ctx, job, now)
		s.release(job.Name)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *Scheduler) runOne(ctx context.Context, job store.Job, now time.Time) JobOutcome {
	s.logger.InfoContext(ctx, "running job", "name", job.Name, "path", job.Path)

	runErr := s.run(ctx, job)

	next := now.Add(time.Minute)
	if sched, err := cron.ParseStandard(job.Schedule); err == nil {
		next = sched.Next(now)
	} else {
		s.logger.WarnContext(ctx, "stored schedule no longer parses", "name", job.Name, "schedule", job.Schedule, "error", err)
	}

	failures, err := s.store.RecordJobRun(ctx, job.Name, now, next, runErr == nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record job run", "name", job.Name, "error", err)
	}

	if runErr != nil {
		s.logger.ErrorContext(ctx, "job run failed", "name", job.Name, "failures", failures, "error", runErr)
		if s.maxFailures > 0 && failures >= s.maxFailures {
			if err := s.store.SetJobEnabled(ctx, job.Name, false); err != nil {
				s.logger.ErrorContext(ctx, "failed to disable job", "name", job.Name, "error", err)
			} else {
				s.logger.WarnContext(ctx, "job disabled after repeated failures", "name", job.Name, "failures", failures)
			}
		}
		return JobOutcome{Name: job.Name, Outcome: OutcomeFailed, Err: runErr}
	}

	s.logger.InfoContext(ctx, "job run succeeded", "name", job.Name, "next_run", next)
	return JobOutcome{Name: job.Name, Outcome: OutcomeRan}
}

// Daemon polls for due jobs every interval until ctx is cancelled.
func (s *Scheduler) Daemon(ctx context.Context, interval time.Duration) error {
	s.logger.InfoContext(ctx, "scheduler daemon started", "poll_interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler daemon stopping")
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := s.RunDue(ctx, now); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "scheduler poll failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) tryAcquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[name]; busy {
		return false
	}
	s.running[name] = struct{}{}
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}
