// Package scheduler fires the reminder sweep on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/reminder"
)

// Sweeper runs one reminder sweep.
type Sweeper interface {
	RunSweep(ctx context.Context) (*reminder.Report, error)
}

type Config struct {
	Spec     string
	Location *time.Location
	Timeout  time.Duration
}

// Scheduler owns a cron engine with a single sweep job.
type Scheduler struct {
	engine  *cron.Cron
	sweeper Sweeper
	config  Config
	logger  *zap.Logger
	entry   cron.EntryID
}

// New parses the schedule and registers the sweep. Nothing runs until Start.
func New(cfg Config, sweeper Sweeper, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	cl := cronLogger{s: logger.Sugar()}
	s := &Scheduler{
		engine: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		config:  cfg,
		logger:  logger,
	}

	id, err := s.engine.AddFunc(cfg.Spec, s.trigger)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Spec, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.engine.Start()
	s.logger.Info("reminder scheduler started",
		zap.String("spec", s.config.Spec),
		zap.String("location", s.config.Location.String()),
		zap.Time("next_run", s.Next()),
	)
}

// Stop prevents further firings and waits for a running sweep, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.engine.Stop()
	select {
	case <-done.Done():
		s.logger.Info("reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running sweep: %w", ctx.Err())
	}
}

// Next returns the next scheduled firing, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.engine.Entry(s.entry).Next
}

func (s *Scheduler) trigger() {
	ctx := context.Background()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	s.logger.Info("cron triggered reminder sweep")
	report, err := s.sweeper.RunSweep(ctx)
	switch {
	case errors.Is(err, reminder.ErrSweepInProgress):
		s.logger.Info("skipping cron sweep, another sweep is running")
	case err != nil:
		s.logger.Error("cron reminder sweep failed", zap.Error(err))
	case report.AlreadyRan:
		s.logger.Info("cron sweep skipped, already ran today", zap.String("date", report.Date))
	}
}

// cronLogger routes cron's internal logging to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
