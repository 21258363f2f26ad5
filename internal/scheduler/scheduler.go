// Package scheduler wires the three periodic jobs onto cron triggers. Each
// job run is guarded by a named lock so at most one instance of a given
// job runs at a time, even across service replicas.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/renewly/reminder-service/internal/config"
	"github.com/renewly/reminder-service/internal/domain/ports"
	"github.com/renewly/reminder-service/pkg/observability"
)

// Job names, also used as lock names
const (
	JobDispatcher = "reminder_dispatcher"
	JobSweeper    = "renewal_sweeper"
	JobRetryQueue = "email_retry_queue"
)

// Runner is one periodic job body
type Runner func(ctx context.Context) error

// Scheduler manages the cron jobs
type Scheduler struct {
	cron   *cron.Cron
	lock   ports.JobLock
	logger ports.Logger
	cfg    config.SchedulerConfig

	dispatcher Runner
	sweeper    Runner
	retryQueue Runner
}

// New creates a scheduler with panic recovery on every job
func New(
	lock ports.JobLock,
	logger ports.Logger,
	cfg config.SchedulerConfig,
	dispatcher, sweeper, retryQueue Runner,
) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	return &Scheduler{
		cron:       c,
		lock:       lock,
		logger:     logger,
		cfg:        cfg,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		retryQueue: retryQueue,
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	jobs := []struct {
		name     string
		schedule string
		run      Runner
	}{
		{JobDispatcher, s.cfg.DispatcherCron, s.dispatcher},
		{JobSweeper, s.cfg.SweeperCron, s.sweeper},
		{JobRetryQueue, s.cfg.RetryCron, s.retryQueue},
	}

	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.schedule, func() {
			s.runLocked(job.name, job.run)
		}); err != nil {
			return err
		}
		s.logger.Info("scheduled job",
			ports.String("job", job.name),
			ports.String("schedule", job.schedule))
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and returns a context that completes when any
// in-flight job finishes
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// runLocked runs one job body under its named lock. When the lock is held
// by an overlapping run the trigger is skipped, not queued.
func (s *Scheduler) runLocked(name string, run Runner) {
	ctx := context.Background()
	start := time.Now()

	acquired, err := s.lock.TryLock(ctx, name)
	if err != nil {
		s.logger.Error("job lock acquisition failed",
			ports.String("job", name),
			ports.Err(err))
		observability.RecordJobRun(name, "failed", 0)
		return
	}
	if !acquired {
		s.logger.Warn("job already running, skipping trigger",
			ports.String("job", name))
		observability.RecordJobRun(name, "skipped", 0)
		return
	}
	defer func() {
		if err := s.lock.Unlock(ctx, name); err != nil {
			s.logger.Error("job lock release failed",
				ports.String("job", name),
				ports.Err(err))
		}
	}()

	if err := run(ctx); err != nil {
		s.logger.Error("job run failed",
			ports.String("job", name),
			ports.Err(err))
		observability.RecordJobRun(name, "failed", time.Since(start).Seconds())
		return
	}
	observability.RecordJobRun(name, "completed", time.Since(start).Seconds())
}
