// Package scheduler runs the usage collection on a cron schedule using gocron/v2.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// JobName identifies the collection job
const JobName = "collect"

// Task is the work run on every tick
type Task func(ctx context.Context) error

// Scheduler triggers a Task on a cron expression evaluated in UTC
type Scheduler struct {
	scheduler gocron.Scheduler
	job       gocron.Job
	logger    zerolog.Logger
}

// New registers task under expr. A tick that fires while the previous run
// is still busy is skipped.
func New(ctx context.Context, expr string, task Task, logger zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	sch := &Scheduler{scheduler: s, logger: logger}

	job, err := s.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() { sch.run(ctx, task) }),
		gocron.WithName(JobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule %q: %w", expr, err)
	}
	sch.job = job

	return sch, nil
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	start := time.Now()
	s.logger.Info().Str("job", JobName).Msg("job started")

	if err := task(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", JobName).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	s.logger.Info().Str("job", JobName).Dur("took", time.Since(start)).Msg("job finished")
}

// Start begins triggering the job
func (s *Scheduler) Start() {
	s.scheduler.Start()
	if next, err := s.job.NextRun(); err == nil {
		s.logger.Info().Time("next_run", next).Msg("scheduler started")
	}
}

// NextRun returns the next time the job fires
func (s *Scheduler) NextRun() (time.Time, error) {
	return s.job.NextRun()
}

// RunNow triggers the job immediately, outside the schedule
func (s *Scheduler) RunNow() error {
	return s.job.RunNow()
}

// Shutdown stops the scheduler and waits for a running job to return
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}
