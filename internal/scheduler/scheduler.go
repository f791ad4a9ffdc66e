// Package scheduler runs the scan pipeline on a recurring cron schedule in
// daemon mode. One job is registered from configuration; overlapping runs
// are skipped rather than queued, since a scan of the same target cannot
// usefully stack.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

// RunFunc executes one full scan-and-collect pass.
type RunFunc func(ctx context.Context) error

// Scheduler owns the cron loop.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger *logging.Logger

	mu      sync.Mutex
	running bool
}

// New creates a scheduler that invokes run on the given cron expression.
// The expression is validated here so a bad schedule fails at startup, not
// at the first tick.
func New(cronExpr string, run RunFunc) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			"Invalid cron expression", "scheduler.cron", cronExpr)
	}

	s := &Scheduler{
		cron:   cron.New(),
		run:    run,
		logger: logging.Default().WithComponent("scheduler"),
	}

	if _, err := s.cron.AddFunc(cronExpr, s.tick); err != nil {
		return nil, errors.WrapConfigError(errors.CodeValidation,
			"Failed to register scheduled run", err)
	}

	s.logger.Info("Scheduled recurring scan", "cron", cronExpr)
	return s, nil
}

// Start runs the cron loop until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// tick executes one scheduled pass, skipping if the previous one is still
// in flight.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Previous scheduled run still in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("Scheduled run starting")
	if err := s.run(context.Background()); err != nil {
		s.logger.WithError(err).Error("Scheduled run failed")
		return
	}
	s.logger.Info("Scheduled run completed")
}
