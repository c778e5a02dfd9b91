// Package schedule runs periodic data refreshes in serve mode.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "racecal/internal/log"
)

// Job is one refresh run.
type Job func(ctx context.Context) error

// Scheduler triggers a Job on a cron spec. Runs never overlap: a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	c       *cron.Cron
	job     Job
	timeout time.Duration

	mu      sync.Mutex
	running bool
}

// New parses spec ("*/30 * * * *" style, five fields) and returns a stopped
// scheduler. timeout bounds each run; zero means no bound.
func New(spec string, timeout time.Duration, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("schedule: job is nil")
	}
	s := &Scheduler{
		c:       cron.New(),
		job:     job,
		timeout: timeout,
	}
	if _, err := s.c.AddFunc(spec, func() { s.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule: invalid refresh spec %q: %w", spec, err)
	}
	return s, nil
}

// Run executes the job once unless a run is in progress. It reports
// whether the job ran.
func (s *Scheduler) Run(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		appLog.Info("refresh skipped; previous run still in progress")
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.job(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err, "duration", time.Since(start).String())
		return true
	}
	appLog.Info("scheduled refresh done", "duration", time.Since(start).String())
	return true
}

// Next returns the next scheduled run time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Start runs the cron loop until ctx is canceled, then waits for a running
// job to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.c.Start()
	appLog.Info("refresh scheduler started", "next", s.Next().Format(time.RFC3339))
	go func() {
		<-ctx.Done()
		<-s.c.Stop().Done()
		appLog.Info("refresh scheduler stopped")
	}()
}
