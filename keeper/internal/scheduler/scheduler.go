// Package scheduler fires reconciliation runs on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Config configures the scheduler.
type Config struct {
	// Interval between runs. Default: 30 minutes.
	Interval time.Duration
	// SkipInitial suppresses the run normally fired on start.
	SkipInitial bool
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
}

// RunFunc performs one run. A tick whose run is skipped (lock held)
// returns nil; it is not retried before the next tick.
type RunFunc func(ctx context.Context) error

// Scheduler calls a RunFunc on a ticker.
type Scheduler struct {
	run    RunFunc
	config Config
	logger *slog.Logger
}

// New creates a Scheduler.
func New(run RunFunc, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{run: run, config: cfg, logger: logger}
}

// Run blocks until ctx is cancelled. Ticks that arrive while a run is in
// progress are dropped by the ticker.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if !s.config.SkipInitial {
		s.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.run(ctx); err != nil {
		s.logger.Error("scheduler: run failed", "error", err)
	}
}
