package safety

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type alertSpy struct {
	mu     sync.Mutex
	events []string
}

func (a *alertSpy) Important(event string, fields map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *alertSpy) has(event string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestBreakerRestartHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(true, 5, 5, 2)
	b.SetRecovery(120*time.Millisecond, 1)

	if err := b.RecordRestart(errors.New("dial failed 1")); err != nil {
		t.Fatalf("RecordRestart(first) error = %v, want nil", err)
	}
	tripErr := b.RecordRestart(errors.New("dial failed 2"))
	if !errors.Is(tripErr, ErrCircuitOpen) {
		t.Fatalf("RecordRestart(second) error = %v, want ErrCircuitOpen", tripErr)
	}

	if err := b.AllowRestart(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("AllowRestart() error = %v, want ErrCircuitOpen while cooling down", err)
	}
	if rem := b.RestartCooldownRemaining(); rem <= 0 {
		t.Fatalf("RestartCooldownRemaining() = %s, want > 0", rem)
	}

	time.Sleep(150 * time.Millisecond)
	if err := b.AllowRestart(); err != nil {
		t.Fatalf("AllowRestart(after cooldown) error = %v, want nil", err)
	}
	if err := b.RecordRestart(nil); err != nil {
		t.Fatalf("RecordRestart(success probe) error = %v, want nil", err)
	}
	if rem := b.RestartCooldownRemaining(); rem != 0 {
		t.Fatalf("RestartCooldownRemaining() = %s, want 0 after recovery", rem)
	}
}

func TestBreakerRestartHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(true, 5, 5, 1)
	b.SetRecovery(120*time.Millisecond, 1)

	tripErr := b.RecordRestart(errors.New("dial failed"))
	if !errors.Is(tripErr, ErrCircuitOpen) {
		t.Fatalf("RecordRestart(trip) error = %v, want ErrCircuitOpen", tripErr)
	}

	time.Sleep(150 * time.Millisecond)
	if err := b.AllowRestart(); err != nil {
		t.Fatalf("AllowRestart(after cooldown) error = %v, want nil", err)
	}
	tripErr = b.RecordRestart(errors.New("probe failed"))
	if !errors.Is(tripErr, ErrCircuitOpen) {
		t.Fatalf("RecordRestart(half-open failure) error = %v, want ErrCircuitOpen", tripErr)
	}

	if err := b.AllowRestart(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("AllowRestart() error = %v, want ErrCircuitOpen after re-open", err)
	}
}

func TestBreakerPlaceCircuitTripsAndAlerts(t *testing.T) {
	spy := &alertSpy{}
	b := NewBreaker(true, 3, 3, 3)
	b.SetAlerter(spy)
	b.SetRecovery(time.Hour, 1)

	_ = b.RecordPlace(errors.New("timeout"))
	_ = b.RecordPlace(errors.New("timeout"))
	if !spy.has("circuit_breaker_near_trip") {
		t.Fatalf("near trip alert missing, got %v", spy.events)
	}
	if err := b.AllowPlace(); err != nil {
		t.Fatalf("AllowPlace() before trip error = %v", err)
	}
	if err := b.RecordPlace(errors.New("timeout")); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("RecordPlace(third) error = %v, want ErrCircuitOpen", err)
	}
	if err := b.AllowPlace(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("AllowPlace() after trip error = %v, want ErrCircuitOpen", err)
	}
	if err := b.AllowCancel(); err != nil {
		t.Fatalf("AllowCancel() error = %v, want cancel circuit unaffected", err)
	}
	if !spy.has("circuit_breaker_trip") {
		t.Fatalf("trip alert missing, got %v", spy.events)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(true, 2, 2, 2)
	_ = b.RecordCancel(errors.New("e1"))
	_ = b.RecordCancel(nil)
	if err := b.RecordCancel(errors.New("e2")); err != nil {
		t.Fatalf("RecordCancel() error = %v, want nil after reset", err)
	}
}

func TestBreakerDisabledAndNil(t *testing.T) {
	b := NewBreaker(false, 1, 1, 1)
	if err := b.RecordRestart(errors.New("x")); err != nil {
		t.Fatalf("disabled RecordRestart() error = %v", err)
	}
	if err := b.AllowRestart(); err != nil {
		t.Fatalf("disabled AllowRestart() error = %v", err)
	}
	var nilBreaker *Breaker
	if err := nilBreaker.AllowPlace(); err != nil {
		t.Fatalf("nil AllowPlace() error = %v", err)
	}
	if err := nilBreaker.RecordCancel(errors.New("x")); err != nil {
		t.Fatalf("nil RecordCancel() error = %v", err)
	}
}
