package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail(context.Context) (int, error) { return 0, errBoom }
func succeed(context.Context) (int, error) { return 42, nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("kite", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Minute})
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := Call(ctx, cb, fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", cb.State())
	}

	called := false
	_, err := Call(ctx, cb, func(context.Context) (int, error) { called = true; return 1, nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open breaker: err = %v called = %v", err, called)
	}

	clock = clock.Add(2 * time.Minute)
	v, err := Call(ctx, cb, succeed)
	if err != nil || v != 42 {
		t.Fatalf("probe: v = %d err = %v", v, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED", cb.State())
	}

	st := cb.Stats()
	if st.TotalRejected != 1 || st.TotalFailures != 2 || st.TotalCalls != 3 {
		t.Errorf("stats = %+v", st)
	}
	if st.LastError != "boom" {
		t.Errorf("last error = %q", st.LastError)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	cb.now = func() time.Time { return clock }

	_, _ = Call(context.Background(), cb, fail)
	clock = clock.Add(2 * time.Second)
	_, _ = Call(context.Background(), cb, fail)
	if cb.State() != CircuitOpen {
		t.Errorf("state = %s, want OPEN", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("kite", CircuitBreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()
	_, _ = Call(ctx, cb, fail)
	_, _ = Call(ctx, cb, succeed)
	_, _ = Call(ctx, cb, fail)
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED", cb.State())
	}
}

func TestCircuitBreaker_CountsDeadlines(t *testing.T) {
	cb := NewCircuitBreaker("kite", DefaultCircuitBreakerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, cb, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if cb.Stats().TotalDeadlines != 1 {
		t.Errorf("deadlines = %d, want 1", cb.Stats().TotalDeadlines)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(DefaultCircuitBreakerConfig())
	a := r.Get("yahoo")
	if r.Get("yahoo") != a {
		t.Error("Get must return the same breaker")
	}
	r.Get("kite")
	stats := r.AllStats()
	if len(stats) != 2 || stats[0].Name != "kite" || stats[1].Name != "yahoo" {
		t.Errorf("stats = %+v", stats)
	}
}
