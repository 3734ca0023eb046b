package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/reminder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingSweeper struct {
	mu        sync.Mutex
	calls     int
	deadlines []bool
	err       error
	fired     chan struct{}
}

func (c *countingSweeper) RunSweep(ctx context.Context) (*reminder.Report, error) {
	c.mu.Lock()
	c.calls++
	_, ok := ctx.Deadline()
	c.deadlines = append(c.deadlines, ok)
	c.mu.Unlock()

	if c.fired != nil {
		select {
		case c.fired <- struct{}{}:
		default:
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &reminder.Report{}, nil
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(Config{Spec: "every morning"}, &countingSweeper{}, zap.NewNop())
	assert.Error(t, err)
}

func TestTrigger_UsesTimeout(t *testing.T) {
	sweeper := &countingSweeper{}
	s, err := New(Config{Spec: "0 9 * * *", Timeout: time.Minute}, sweeper, zap.NewNop())
	require.NoError(t, err)

	s.trigger()

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, []bool{true}, sweeper.deadlines)
}

func TestTrigger_SurvivesErrors(t *testing.T) {
	for _, err := range []error{reminder.ErrSweepInProgress, errors.New("store down")} {
		sweeper := &countingSweeper{err: err}
		s, newErr := New(Config{Spec: "0 9 * * *"}, sweeper, zap.NewNop())
		require.NoError(t, newErr)

		assert.NotPanics(t, s.trigger)
		assert.Equal(t, []bool{false}, sweeper.deadlines)
	}
}

func TestNext_RespectsLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	s, err := New(Config{Spec: "0 9 * * *", Location: tokyo}, &countingSweeper{}, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	next := s.Next().In(tokyo)
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestScheduler_FiresAndStops(t *testing.T) {
	sweeper := &countingSweeper{fired: make(chan struct{}, 1)}
	s, err := New(Config{Spec: "@every 1s", Timeout: time.Second}, sweeper, zap.NewNop())
	require.NoError(t, err)

	s.Start()

	select {
	case <-sweeper.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep was not triggered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
