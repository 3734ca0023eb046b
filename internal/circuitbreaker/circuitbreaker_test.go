package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/mailer"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeClock is advanced by hand so recovery timeouts need no sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func tripped(t *testing.T, clock *fakeClock, maxFailures int) *CircuitBreaker {
	t.Helper()
	cb := New(Config{Name: "test", MaxFailures: maxFailures, RecoveryTimeout: time.Minute, Now: clock.Now}, testLogger())
	for i := 0; i < maxFailures; i++ {
		cb.Allow()
		cb.RecordFailure()
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.GetState())
	}
	return cb
}

func TestCircuitBreaker_StartsInClosedState(t *testing.T) {
	cb := New(Config{Name: "test"}, testLogger())
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_AllowsRequestsWhenClosed(t *testing.T) {
	cb := New(Config{Name: "test"}, testLogger())
	for i := 0; i < 10; i++ {
		if !cb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	tripped(t, newFakeClock(), 3)
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	clock := newFakeClock()
	cb := tripped(t, clock, 2)
	clock.Advance(59 * time.Second)
	if cb.Allow() {
		t.Fatal("should reject before recovery timeout")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := newFakeClock()
	cb := tripped(t, clock, 2)
	clock.Advance(time.Minute)
	if !cb.Allow() {
		t.Fatal("should allow a trial request after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ClosesOnSuccessfulTrial(t *testing.T) {
	clock := newFakeClock()
	cb := tripped(t, clock, 2)
	clock.Advance(time.Minute)
	cb.Allow()
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ReopensOnFailedTrial(t *testing.T) {
	clock := newFakeClock()
	cb := tripped(t, clock, 2)
	clock.Advance(time.Minute)
	cb.Allow()
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.GetState())
	}
	if cb.Allow() {
		t.Fatal("recovery timeout should restart from the failed trial")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 3}, testLogger())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordSuccess()
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Fatal("success should have reset failure count")
	}
}

func TestCircuitBreaker_HalfOpenLimitsRequests(t *testing.T) {
	clock := newFakeClock()
	cb := tripped(t, clock, 2)
	clock.Advance(time.Minute)
	if !cb.Allow() {
		t.Fatal("first half-open request should be allowed")
	}
	if cb.Allow() {
		t.Fatal("second half-open request should be rejected")
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()
	var seen []State
	cb := New(Config{
		Name:            "smtp",
		MaxFailures:     1,
		RecoveryTimeout: time.Minute,
		Now:             clock.Now,
		OnStateChange:   func(_ string, s State) { seen = append(seen, s) },
	}, testLogger())

	cb.Allow()
	cb.RecordFailure()
	clock.Advance(time.Minute)
	cb.Allow()
	cb.RecordSuccess()

	want := []State{StateClosed, StateOpen, StateHalfOpen, StateClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := New(Config{Name: "stats-test", MaxFailures: 5, RecoveryTimeout: 5 * time.Second}, testLogger())
	cb.Allow()
	cb.RecordSuccess()
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordSuccess()
	stats := cb.Stats()
	if stats.Name != "stats-test" {
		t.Fatalf("name = %s", stats.Name)
	}
	if stats.TotalRequests != 3 {
		t.Fatalf("total_requests = %d", stats.TotalRequests)
	}
	if stats.TotalSuccesses != 2 {
		t.Fatalf("total_successes = %d", stats.TotalSuccesses)
	}
	if stats.TotalFailures != 1 {
		t.Fatalf("total_failures = %d", stats.TotalFailures)
	}
	if stats.LastFailure == "" {
		t.Fatal("last_failure should be set")
	}
}

func TestCircuitBreaker_ConfigDefaults(t *testing.T) {
	cb := New(Config{Name: "svc"}, testLogger())
	if cb.config.MaxFailures != 5 {
		t.Fatalf("max_failures = %d", cb.config.MaxFailures)
	}
	if cb.config.RecoveryTimeout != 30*time.Second {
		t.Fatalf("recovery_timeout = %v", cb.config.RecoveryTimeout)
	}
	if cb.config.HalfOpenMaxRequests != 1 {
		t.Fatalf("half_open_max_requests = %d", cb.config.HalfOpenMaxRequests)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d) = %s, want %s", tt.s, got, tt.want)
		}
	}
}

type mockMailer struct {
	mu      sync.Mutex
	sendErr error
	calls   int
}

func (m *mockMailer) Send(_ context.Context, _ mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.sendErr
}

func (m *mockMailer) setErr(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *mockMailer) resetCalls() {
	m.mu.Lock()
	m.calls = 0
	m.mu.Unlock()
}

func (m *mockMailer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testMessage() mailer.Message {
	return mailer.Message{To: "owner@example.com", Subject: "Reminder", Text: "Milk"}
}

func TestProtectedMailer_PassesThrough(t *testing.T) {
	mock := &mockMailer{}
	pm := NewProtectedMailer(mock, New(Config{Name: "test", MaxFailures: 5}, testLogger()), testLogger())
	if err := pm.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if mock.callCount() != 1 {
		t.Fatalf("calls = %d", mock.callCount())
	}
}

func TestProtectedMailer_FailFastWhenOpen(t *testing.T) {
	mock := &mockMailer{sendErr: errors.New("relay down")}
	pm := NewProtectedMailer(mock, New(Config{Name: "test", MaxFailures: 2}, testLogger()), testLogger())
	_ = pm.Send(context.Background(), testMessage())
	_ = pm.Send(context.Background(), testMessage())
	mock.resetCalls()

	err := pm.Send(context.Background(), testMessage())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got: %v", err)
	}
	if mock.callCount() != 0 {
		t.Fatalf("mailer called %d times when circuit open", mock.callCount())
	}
}

func TestProtectedMailer_InvalidMessageDoesNotTrip(t *testing.T) {
	mock := &mockMailer{}
	cb := New(Config{Name: "test", MaxFailures: 1}, testLogger())
	pm := NewProtectedMailer(mock, cb, testLogger())

	err := pm.Send(context.Background(), mailer.Message{Subject: "s", Text: "t"})
	if !errors.Is(err, mailer.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
	if cb.Stats().TotalRequests != 0 {
		t.Fatal("invalid message should not reach the breaker")
	}
}

// recipientMailer rejects listed addresses the way a relay answers 550.
type recipientMailer struct {
	mu        sync.Mutex
	reject    map[string]bool
	delivered []string
}

func (m *recipientMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject[msg.To] {
		return fmt.Errorf("smtp rcpt %s: %w: 550 mailbox unavailable", msg.To, mailer.ErrRecipientRejected)
	}
	m.delivered = append(m.delivered, msg.To)
	return nil
}

func TestProtectedMailer_RecipientRejectionsDoNotTrip(t *testing.T) {
	const maxFailures = 5
	m := &recipientMailer{reject: map[string]bool{}}
	var recipients []string
	for i := 0; i < maxFailures; i++ {
		addr := fmt.Sprintf("bad%d@example.com", i)
		m.reject[addr] = true
		recipients = append(recipients, addr)
	}
	recipients = append(recipients, "owner@example.com")

	cb := New(Config{Name: "smtp", MaxFailures: maxFailures}, testLogger())
	pm := NewProtectedMailer(m, cb, testLogger())

	for _, to := range recipients {
		err := pm.Send(context.Background(), mailer.Message{To: to, Subject: "Reminder", Text: "Milk"})
		if m.reject[to] {
			if !errors.Is(err, mailer.ErrRecipientRejected) {
				t.Fatalf("%s: expected ErrRecipientRejected, got %v", to, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", to, err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
	if len(m.delivered) != 1 || m.delivered[0] != "owner@example.com" {
		t.Fatalf("delivered = %v", m.delivered)
	}
	if cb.Stats().TotalFailures != 0 {
		t.Fatalf("recipient rejections counted as failures: %d", cb.Stats().TotalFailures)
	}
}

func TestProtectedMailer_FullLifecycle(t *testing.T) {
	clock := newFakeClock()
	mock := &mockMailer{}
	cb := New(Config{Name: "lifecycle", MaxFailures: 3, RecoveryTimeout: time.Minute, Now: clock.Now}, testLogger())
	pm := NewProtectedMailer(mock, cb, testLogger())
	msg := testMessage()

	if err := pm.Send(context.Background(), msg); err != nil {
		t.Fatalf("healthy relay: %v", err)
	}

	mock.setErr(errors.New("421 service not available"))
	for i := 0; i < 3; i++ {
		_ = pm.Send(context.Background(), msg)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}

	mock.resetCalls()
	if err := pm.Send(context.Background(), msg); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected fail fast: %v", err)
	}
	if mock.callCount() != 0 {
		t.Fatal("mailer should not be called while open")
	}

	clock.Advance(time.Minute)
	mock.setErr(nil)
	if err := pm.Send(context.Background(), msg); err != nil {
		t.Fatalf("trial request: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.GetState())
	}

	for i := 0; i < 5; i++ {
		if err := pm.Send(context.Background(), msg); err != nil {
			t.Fatalf("recovered send %d: %v", i, err)
		}
	}
}
