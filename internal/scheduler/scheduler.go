// Package scheduler triggers the posting pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule posts once a day at noon.
const DefaultSchedule = "0 12 * * *"

// Job is the work run on every tick.
type Job func(ctx context.Context) error

// Status describes the scheduler's last and next run.
type Status struct {
	Schedule  string
	NextRun   time.Time
	LastStart time.Time
	LastEnd   time.Time
	LastError string
	Running   bool
}

// Scheduler runs a Job on a cron schedule, skipping ticks while a previous
// run is still going.
type Scheduler struct {
	cron   *cron.Cron
	entry  cron.EntryID
	spec   string
	job    Job
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	status Status
}

// New parses spec (standard five-field cron or a @descriptor) in loc.
func New(spec string, loc *time.Location, job Job, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		spec:   spec,
		job:    job,
		logger: logger,
		ctx:    context.Background(),
		status: Status{Schedule: spec},
	}

	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	entry, err := s.cron.AddFunc(spec, func() { s.RunNow() })
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.entry = entry

	return s, nil
}

// Start begins ticking. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.spec, "next_run", s.cron.Entry(s.entry).Next)
}

// Stop stops ticking and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with a job still running")
	}
}

// RunNow runs the job synchronously.
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	ctx := s.ctx
	s.status.Running = true
	s.status.LastStart = time.Now()
	s.mu.Unlock()

	s.logger.Info("scheduled run starting")
	err := s.job(ctx)

	s.mu.Lock()
	s.status.Running = false
	s.status.LastEnd = time.Now()
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	elapsed := s.status.LastEnd.Sub(s.status.LastStart)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled run failed", "duration", elapsed, "error", err)
		return
	}
	s.logger.Info("scheduled run finished", "duration", elapsed)
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	st.NextRun = s.cron.Entry(s.entry).Next
	return st
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
