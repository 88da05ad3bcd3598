// Package scheduler triggers update runs on a cron schedule while the API is served.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/ndewijer/market-data-store/internal/service"
)

// UpdateType is recorded on update_log rows started by the scheduler.
const UpdateType = "scheduled"

// Runner is the part of the update service the scheduler drives.
type Runner interface {
	RunUpdate(ctx context.Context, updateType string, opts service.RunOptions) int
}

// Parser accepts five-field specs and an optional leading seconds field, plus
// descriptors such as @daily.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler manages the update cron entry.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *slog.Logger
	ctx    context.Context
}

// New creates a Scheduler. Runs started by it use ctx, so cancelling ctx aborts
// an in-flight run. A trigger that fires while the previous run is still going
// is skipped.
func New(ctx context.Context, runner Runner, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		logger: logger,
		ctx:    ctx,
	}
}

// Register adds the update job under spec.
func (s *Scheduler) Register(spec string) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, s.updateTask)
	if err != nil {
		return 0, fmt.Errorf("register update task %q: %w", spec, err)
	}
	return id, nil
}

// Start starts the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops scheduling new runs and waits for a running one to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Entry returns the registered entry, including its next fire time once started.
func (s *Scheduler) Entry(id cron.EntryID) cron.Entry {
	return s.cron.Entry(id)
}

func (s *Scheduler) updateTask() {
	s.logger.Info("running scheduled update")
	code := s.runner.RunUpdate(s.ctx, UpdateType, service.RunOptions{})
	if code != service.ExitOK {
		s.logger.Warn("scheduled update did not complete", "exit_code", code)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
