// Package sched runs the periodic board evaluation. Runs are strictly
// sequential: a tick that overruns the interval delays the next one
// rather than overlapping it.
package sched

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler invokes a function immediately and then at a fixed period.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger
}

// New returns a Scheduler with the given period.
func New(interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. fn runs once right away, then once
// per interval.
func (s *Scheduler) Run(ctx context.Context, fn func(context.Context)) {
	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", s.interval))

	fn(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
