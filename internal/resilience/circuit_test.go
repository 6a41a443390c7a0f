package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance the breaker's view of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg CircuitConfig) (*CircuitBreaker, *fakeClock) {
	cb := NewCircuitBreaker(cfg)
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cb.now = clock.Now
	return cb, clock
}

func failingCall(_ context.Context) error { return errors.New("upstream down") }

func TestCircuit_OpensAtFailureThreshold(t *testing.T) {
	cb, _ := newTestBreaker(CircuitConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after 1 failure, got %v", cb.State())
	}

	_ = cb.Execute(ctx, failingCall)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 2 failures, got %v", cb.State())
	}
}

func TestCircuit_OpenShortCircuits(t *testing.T) {
	cb, _ := newTestBreaker(CircuitConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)

	var invoked bool
	err := cb.Execute(ctx, func(_ context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if invoked {
		t.Error("wrapped function must not run while the circuit is open")
	}
}

func TestCircuit_HalfOpenAfterResetTimeout(t *testing.T) {
	cb, clock := newTestBreaker(CircuitConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		SuccessThreshold: 3,
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)

	clock.Advance(61 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %v", cb.State())
	}

	// Three consecutive probe successes close the circuit.
	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func(_ context.Context) error { return nil })
		if err != nil {
			t.Fatalf("probe %d: unexpected error: %v", i+1, err)
		}
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after 3 probe successes, got %v", cb.State())
	}
}

func TestCircuit_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		SuccessThreshold: 3,
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)
	clock.Advance(61 * time.Second)

	// Two successes, then a failure: straight back to open.
	_ = cb.Execute(ctx, func(_ context.Context) error { return nil })
	_ = cb.Execute(ctx, func(_ context.Context) error { return nil })
	_ = cb.Execute(ctx, failingCall)

	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after half-open failure, got %v", cb.State())
	}
	if err := cb.Execute(ctx, failingCall); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuit_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, func(_ context.Context) error { return nil })
	_ = cb.Execute(ctx, failingCall)

	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed (failures interleaved with success), got %v", cb.State())
	}
	failures, _ := cb.Counters()
	if failures != 1 {
		t.Errorf("expected failure count 1, got %d", failures)
	}
}

func TestCircuit_ConcurrentCallsNoLostUpdates(t *testing.T) {
	cb, _ := newTestBreaker(CircuitConfig{FailureThreshold: 50, ResetTimeout: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(ctx, failingCall)
		}()
	}
	wg.Wait()

	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 50 concurrent failures, got %v", cb.State())
	}
}

func TestCircuit_StateChangeHook(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(CircuitConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		SuccessThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	clock.Advance(61 * time.Second)
	_ = cb.Execute(ctx, func(_ context.Context) error { return nil })

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i, tr := range want {
		if transitions[i] != tr {
			t.Errorf("transition %d: expected %s, got %s", i, tr, transitions[i])
		}
	}
}

func TestBreakerVal_ReturnsValue(t *testing.T) {
	cb, _ := newTestBreaker(DefaultCircuitConfig())
	val, err := BreakerVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "page body", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "page body" {
		t.Errorf("expected %q, got %q", "page body", val)
	}
}
