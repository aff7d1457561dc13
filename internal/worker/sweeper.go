// Package worker schedules the periodic maintenance sweeps: reminder
// escalation and stale-ticket auto-close.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/observability"
)

// Sweeper runs named jobs on fixed intervals. A job that is still
// running when its next tick fires is skipped, never run concurrently
// with itself.
type Sweeper struct {
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *observability.Metrics
	jobs    []*sweepJob
}

type sweepJob struct {
	name    string
	fn      func(context.Context)
	running atomic.Bool
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewSweeper creates an empty sweeper.
func NewSweeper(logger *zap.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		cron:    cron.New(),
		logger:  logger.Named("sweeper"),
		metrics: metrics,
	}
}

// AddJob registers fn to run every interval. Intervals below one second
// are rejected.
func (s *Sweeper) AddJob(name string, interval time.Duration, fn func(context.Context)) error {
	if interval < time.Second {
		return fmt.Errorf("sweep %q: interval %v too short", name, interval)
	}
	job := &sweepJob{
		name:    name,
		fn:      fn,
		logger:  s.logger,
		metrics: s.metrics,
	}
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, func() { job.run(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", name, err)
	}
	s.jobs = append(s.jobs, job)
	s.logger.Info("registered sweep", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for in-flight jobs to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// run executes the job once, skipping if a previous run is still going.
func (j *sweepJob) run(ctx context.Context) {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Warn("sweep still running, skipping tick", zap.String("job", j.name))
		j.metrics.Inc(observability.CounterSweepSkips)
		return
	}
	defer j.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("sweep panicked", zap.String("job", j.name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	j.fn(ctx)
	j.metrics.Inc(observability.CounterSweepRuns)
	j.logger.Debug("sweep complete", zap.String("job", j.name), zap.Duration("took", time.Since(start)))
}
