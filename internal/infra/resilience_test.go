package infra

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequestDeduplicator_SingleCall(t *testing.T) {
	d := NewRequestDeduplicator[[]byte]()

	result, shared, err := d.Do(context.Background(), "cif:1", func() ([]byte, error) {
		return []byte("data_1"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shared {
		t.Error("first call should not be shared")
	}
	if string(result) != "data_1" {
		t.Errorf("result = %q, want %q", result, "data_1")
	}
	if n := d.Stats(); n != 0 {
		t.Errorf("Stats() = %d after completion, want 0", n)
	}
}

func TestRequestDeduplicator_ConcurrentCallsShareResult(t *testing.T) {
	d := NewRequestDeduplicator[string]()

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	const waiters = 5
	var wg sync.WaitGroup
	results := make([]string, waiters+1)
	sharedFlags := make([]bool, waiters+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], sharedFlags[0], _ = d.Do(context.Background(), "key", func() (string, error) {
			calls.Add(1)
			close(started)
			<-release
			return "value", nil
		})
	}()
	<-started

	for i := 1; i <= waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], sharedFlags[i], _ = d.Do(context.Background(), "key", func() (string, error) {
				calls.Add(1)
				return "other", nil
			})
		}(i)
	}

	// let the waiters register before releasing the leader
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		n := d.inflight["key"].waiters
		d.mu.Unlock()
		if n == waiters+1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
	for i, r := range results {
		if r != "value" {
			t.Errorf("results[%d] = %q, want %q", i, r, "value")
		}
	}
	if sharedFlags[0] {
		t.Error("leader should not report shared")
	}
	for i := 1; i <= waiters; i++ {
		if !sharedFlags[i] {
			t.Errorf("waiter %d should report shared", i)
		}
	}
}

func TestRequestDeduplicator_ErrorPropagates(t *testing.T) {
	d := NewRequestDeduplicator[int]()
	want := errors.New("download failed")

	_, _, err := d.Do(context.Background(), "k", func() (int, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestRequestDeduplicator_WaiterContextCancel(t *testing.T) {
	d := NewRequestDeduplicator[int]()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _, _ = d.Do(context.Background(), "slow", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, shared, err := d.Do(ctx, "slow", func() (int, error) { return 2, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if shared {
		t.Error("cancelled waiter should not report shared")
	}
	close(release)
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(WithName("mofdb"))

	if cb.Name() != "mofdb" {
		t.Errorf("Name() = %q, want %q", cb.Name(), "mofdb")
	}
	if cb.ResetTimeout() != 30*time.Second {
		t.Errorf("ResetTimeout() = %v, want 30s", cb.ResetTimeout())
	}
	if cb.State() != CircuitClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if !cb.Allow() {
		t.Error("closed breaker should allow requests")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(WithThresholds(3, time.Hour, 1))

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if cb.State() != CircuitClosed {
			t.Fatalf("state after %d failures = %v, want closed", i+1, cb.State())
		}
	}
	cb.RecordFailure()

	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("open breaker should reject requests before the reset timeout")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(WithThresholds(3, time.Hour, 1))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
	if got := cb.Stats().ConsecutiveFails; got != 2 {
		t.Errorf("ConsecutiveFails = %d, want 2", got)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(WithThresholds(1, 10*time.Millisecond, 2))

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("breaker should allow a probe after the reset timeout")
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("state after probe success = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(WithThresholds(1, 10*time.Millisecond, 2))

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow()

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Errorf("state after probe failure = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb := NewCircuitBreaker(WithThresholds(1, 10*time.Millisecond, 2))

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	// the transition request counts against the budget
	allowed := 0
	for i := 0; i < 5; i++ {
		if cb.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed %d requests while half-open, want 2", allowed)
	}
}

func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	type transition struct {
		name     string
		from, to CircuitState
	}
	var mu sync.Mutex
	var got []transition

	cb := NewCircuitBreaker(
		WithName("optimade"),
		WithThresholds(1, 10*time.Millisecond, 1),
		WithStateChange(func(name string, from, to CircuitState) {
			mu.Lock()
			got = append(got, transition{name, from, to})
			mu.Unlock()
		}),
	)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow()
	cb.RecordSuccess()
	cb.RecordSuccess() // no transition

	want := []transition{
		{"optimade", CircuitClosed, CircuitOpen},
		{"optimade", CircuitOpen, CircuitHalfOpen},
		{"optimade", CircuitHalfOpen, CircuitClosed},
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("got %d transitions, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(WithName("bohrium"))
	before := time.Now()
	cb.RecordFailure()

	stats := cb.Stats()
	if stats.Name != "bohrium" {
		t.Errorf("Name = %q, want %q", stats.Name, "bohrium")
	}
	if stats.State != "closed" {
		t.Errorf("State = %q, want %q", stats.State, "closed")
	}
	if stats.ConsecutiveFails != 1 {
		t.Errorf("ConsecutiveFails = %d, want 1", stats.ConsecutiveFails)
	}
	if stats.LastFailure.Before(before) {
		t.Errorf("LastFailure = %v, want >= %v", stats.LastFailure, before)
	}
}

func TestErrCircuitOpen_Error(t *testing.T) {
	retryAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	named := ErrCircuitOpen{Name: "openlam", State: "open", RetryAt: retryAt, Failures: 5}
	if got := named.Error(); !strings.Contains(got, "openlam is failing") || !strings.Contains(got, "2026-01-02T03:04:05Z") {
		t.Errorf("Error() = %q", got)
	}

	anon := ErrCircuitOpen{RetryAt: retryAt}
	if got := anon.Error(); !strings.HasPrefix(got, "circuit breaker is open: upstream is failing") {
		t.Errorf("Error() = %q", got)
	}
}
