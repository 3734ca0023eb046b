package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/db"
	"github.com/lalithlochan/shelflife/internal/expiry"
)

// RunStateStore persists the day of the last sweep. GetRunState returns
// (nil, nil) when no sweep has ever been recorded.
type RunStateStore interface {
	GetRunState(ctx context.Context) (*db.RunState, error)
	SetRunState(ctx context.Context, state db.RunState) error
}

// GuardMode selects when the day is recorded.
type GuardMode string

const (
	// MarkBefore records the day before any work. A crash mid-sweep loses
	// the remaining reminders for that day.
	MarkBefore GuardMode = "mark_before"

	// MarkAfter records the day once dispatch has finished. A crash
	// mid-sweep lets a later trigger the same day send again.
	MarkAfter GuardMode = "mark_after"
)

// Guard keeps the sweep to at most one run per calendar day.
type Guard struct {
	store  RunStateStore
	mode   GuardMode
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

type GuardOption func(*Guard)

func WithGuardMode(mode GuardMode) GuardOption {
	return func(g *Guard) { g.mode = mode }
}

func WithGuardLocation(loc *time.Location) GuardOption {
	return func(g *Guard) { g.loc = loc }
}

func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

func NewGuard(store RunStateStore, logger *zap.Logger, opts ...GuardOption) *Guard {
	g := &Guard{
		store:  store,
		mode:   MarkBefore,
		loc:    time.UTC,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Mode() GuardMode { return g.mode }

// AlreadyRanToday reports whether today's sweep has already been recorded.
// In MarkBefore mode a false result also records today, so the next call
// on the same day returns true.
func (g *Guard) AlreadyRanToday(ctx context.Context) (bool, error) {
	return g.begin(ctx, g.now())
}

// begin is AlreadyRanToday for an explicit instant.
func (g *Guard) begin(ctx context.Context, now time.Time) (bool, error) {
	today := expiry.DateKey(now, g.loc)

	state, err := g.store.GetRunState(ctx)
	if err != nil {
		return false, fmt.Errorf("read run state: %w", err)
	}
	if state != nil && state.Date == today {
		g.logger.Info("reminder job already ran today", zap.String("date", today))
		return true, nil
	}

	if g.mode == MarkBefore {
		if err := g.mark(ctx, today, now); err != nil {
			return false, err
		}
	}
	return false, nil
}

// complete records the day in MarkAfter mode. It is a no-op in MarkBefore.
func (g *Guard) complete(ctx context.Context, now time.Time) error {
	if g.mode != MarkAfter {
		return nil
	}
	return g.mark(ctx, expiry.DateKey(now, g.loc), g.now())
}

func (g *Guard) mark(ctx context.Context, day string, at time.Time) error {
	if err := g.store.SetRunState(ctx, db.RunState{Date: day, UpdatedAt: at}); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	g.logger.Debug("run state recorded", zap.String("date", day), zap.String("mode", string(g.mode)))
	return nil
}
