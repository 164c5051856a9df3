package services

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(&CircuitBreakerConfig{
		MaxFailures:     3,
		ResetTimeout:    time.Minute,
		HalfOpenMaxReqs: 1,
	})

	if cb.State() != StateClosedCB {
		t.Fatalf("initial state = %s, want closed", cb.State())
	}
	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("closed breaker must allow request %d", i)
		}
		cb.OnFailure()
	}
	if cb.State() != StateOpenCB {
		t.Errorf("state = %s, want open after 3 failures", cb.State())
	}
	if cb.Allow() {
		t.Error("open breaker must reject")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(&CircuitBreakerConfig{
		MaxFailures:     3,
		ResetTimeout:    time.Minute,
		HalfOpenMaxReqs: 1,
	})

	cb.OnFailure()
	cb.OnFailure()
	cb.OnSuccess()
	cb.OnFailure()
	cb.OnFailure()
	if cb.State() != StateClosedCB {
		t.Errorf("state = %s, want closed (streak broken by success)", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(&CircuitBreakerConfig{
		MaxFailures:     1,
		ResetTimeout:    10 * time.Millisecond,
		HalfOpenMaxReqs: 2,
	})

	cb.OnFailure()
	if cb.State() != StateOpenCB {
		t.Fatalf("state = %s, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("after reset timeout the breaker should probe")
	}
	if cb.State() != StateHalfOpenCB {
		t.Fatalf("state = %s, want half-open", cb.State())
	}

	cb.OnSuccess()
	if cb.State() != StateClosedCB {
		t.Errorf("state = %s, want closed after probe success", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(&CircuitBreakerConfig{
		MaxFailures:     1,
		ResetTimeout:    10 * time.Millisecond,
		HalfOpenMaxReqs: 2,
	})

	cb.OnFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("probe should be allowed")
	}
	cb.OnFailure()
	if cb.State() != StateOpenCB {
		t.Errorf("state = %s, want open after probe failure", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRequestCap(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(&CircuitBreakerConfig{
		MaxFailures:     1,
		ResetTimeout:    10 * time.Millisecond,
		HalfOpenMaxReqs: 2,
	})

	cb.OnFailure()
	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("first probe allowed")
	}
	if !cb.Allow() {
		t.Fatal("second probe allowed")
	}
	if cb.Allow() {
		t.Error("third probe must be rejected in half-open")
	}
}

func TestCircuitBreakerState_String(t *testing.T) {
	tests := []struct {
		state CircuitBreakerState
		want  string
	}{
		{StateClosedCB, "closed"},
		{StateOpenCB, "open"},
		{StateHalfOpenCB, "half-open"},
		{CircuitBreakerState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	if cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d", cfg.MaxFailures)
	}
	if cfg.ResetTimeout != 60*time.Second {
		t.Errorf("ResetTimeout = %v", cfg.ResetTimeout)
	}
	if cfg.HalfOpenMaxReqs != 3 {
		t.Errorf("HalfOpenMaxReqs = %d", cfg.HalfOpenMaxReqs)
	}
}
