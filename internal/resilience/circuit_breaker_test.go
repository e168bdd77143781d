package resilience

import (
	"errors"
	"testing"
	"time"
)

var errVeo = errors.New("veo backend unavailable")

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("veo-test", 3, time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state Closed, got %s", cb.GetState())
	}
	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("veo-test", 3, time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Errorf("Expected Open after 3 failures, got %s", cb.GetState())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected guarded function not to run while Open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("veo-test", 2, time.Second)

	cb.RecordResult(false)
	cb.RecordResult(true)
	cb.RecordResult(false)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected Closed when failures are not consecutive, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	cb := NewCircuitBreaker("veo-test", 1, 50*time.Millisecond)

	_ = cb.Call(func() error { return errVeo })
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected Open, got %s", cb.GetState())
	}

	time.Sleep(80 * time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected probe to run, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected Closed after successful probe, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("veo-test", 1, 50*time.Millisecond)

	_ = cb.Call(func() error { return errVeo })
	time.Sleep(80 * time.Millisecond)

	if err := cb.Call(func() error { return errVeo }); !errors.Is(err, errVeo) {
		t.Fatalf("Expected probe error, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Errorf("Expected Open after failed probe, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker("veo-test", 1, 50*time.Millisecond)
	cb.RecordResult(false)
	time.Sleep(80 * time.Millisecond)

	if !cb.allowRequest() {
		t.Fatal("Expected first probe to be allowed")
	}
	if cb.allowRequest() {
		t.Error("Expected second concurrent probe to be rejected")
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb := NewCircuitBreaker("veo-test", 3, time.Second)

	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requestCount, failureCount, failureRate := cb.GetStats()
	if state != StateClosed {
		t.Errorf("Expected state Closed, got %s", state)
	}
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failureCount)
	}
	if failureRate < 33.0 || failureRate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", failureRate)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("veo-test", 1, time.Minute)
	cb.RecordResult(false)

	cb.Reset()

	state, requestCount, failureCount, _ := cb.GetStats()
	if state != StateClosed || requestCount != 0 || failureCount != 0 {
		t.Errorf("Expected reset stats, got state=%s requests=%d failures=%d", state, requestCount, failureCount)
	}
}
