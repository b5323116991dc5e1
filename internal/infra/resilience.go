// Package infra provides shared resilience components for the materials database
// clients: a circuit breaker per upstream and coalescing of identical in-flight
// requests (CIF downloads requested by concurrent tool calls).
package infra

import (
	"context"
	"sync"
	"time"
)

// RequestDeduplicator coalesces identical in-flight requests. When several
// goroutines ask for the same key at once, fn runs once and every waiter
// receives its result.
type RequestDeduplicator[T any] struct {
	mu       sync.Mutex
	inflight map[string]*inflightRequest[T]
}

type inflightRequest[T any] struct {
	done    chan struct{}
	result  T
	err     error
	waiters int
}

// NewRequestDeduplicator creates a new deduplicator
func NewRequestDeduplicator[T any]() *RequestDeduplicator[T] {
	return &RequestDeduplicator[T]{
		inflight: make(map[string]*inflightRequest[T]),
	}
}

// Do executes fn unless a request with the same key is already running, in
// which case it waits for that result. The boolean reports whether the result
// was shared from another caller.
func (d *RequestDeduplicator[T]) Do(ctx context.Context, key string, fn func() (T, error)) (T, bool, error) {
	d.mu.Lock()
	if req, ok := d.inflight[key]; ok {
		req.waiters++
		d.mu.Unlock()

		select {
		case <-req.done:
			return req.result, true, req.err
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}

	req := &inflightRequest[T]{
		done:    make(chan struct{}),
		waiters: 1,
	}
	d.inflight[key] = req
	d.mu.Unlock()

	req.result, req.err = fn()
	close(req.done)

	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()

	return req.result, false, req.err
}

// Stats returns the number of keys currently in flight
func (d *RequestDeduplicator[T]) Stats() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// CircuitState represents the current state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing fast
	CircuitHalfOpen                     // Probing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeFunc is notified after every state transition.
type StateChangeFunc func(name string, from, to CircuitState)

// CircuitBreaker fails fast when an upstream database keeps failing. It opens
// after failureThreshold consecutive failures and lets a few probe requests
// through once resetTimeout has passed.
type CircuitBreaker struct {
	mu sync.RWMutex

	name             string
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int
	onStateChange    StateChangeFunc

	state            CircuitState
	consecutiveFails int
	lastFailure      time.Time
	halfOpenCount    int
}

// CircuitBreakerOption configures a CircuitBreaker
type CircuitBreakerOption func(*CircuitBreaker)

// WithName labels the breaker, usually with the upstream database name
func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

// WithThresholds overrides the failure threshold, reset timeout and half-open budget
func WithThresholds(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = failureThreshold
		cb.resetTimeout = resetTimeout
		cb.halfOpenMax = halfOpenMax
	}
}

// WithStateChange registers a transition callback. It runs with the breaker
// lock released.
func WithStateChange(fn StateChangeFunc) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// NewCircuitBreaker creates a breaker that opens after 5 consecutive failures,
// retries after 30 seconds and allows 2 probes while half-open.
func NewCircuitBreaker(opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		failureThreshold: 5,
		resetTimeout:     30 * time.Second,
		halfOpenMax:      2,
		state:            CircuitClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the breaker label
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// ResetTimeout returns how long the breaker stays open before probing
func (cb *CircuitBreaker) ResetTimeout() time.Duration {
	return cb.resetTimeout
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	from := cb.state
	allowed := false

	switch cb.state {
	case CircuitClosed:
		allowed = true
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			// the transitioning request is the first probe
			cb.state = CircuitHalfOpen
			cb.halfOpenCount = 1
			allowed = true
		}
	case CircuitHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			allowed = true
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

// RecordSuccess resets the failure count and closes a half-open circuit
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	cb.consecutiveFails = 0
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.halfOpenCount = 0
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// RecordFailure counts a failure and opens the circuit when the threshold is hit
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	cb.consecutiveFails++
	cb.lastFailure = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFails >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.halfOpenCount = 0
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns circuit breaker statistics
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerStats{
		Name:             cb.name,
		State:            cb.state.String(),
		ConsecutiveFails: cb.consecutiveFails,
		LastFailure:      cb.lastFailure,
	}
}

// CircuitBreakerStats contains circuit breaker statistics
type CircuitBreakerStats struct {
	Name             string    `json:"name,omitempty"`
	State            string    `json:"state"`
	ConsecutiveFails int       `json:"consecutive_failures"`
	LastFailure      time.Time `json:"last_failure,omitempty"`
}

// ErrCircuitOpen is returned when the circuit breaker rejects a request
type ErrCircuitOpen struct {
	Name     string
	State    string
	RetryAt  time.Time
	Failures int
}

func (e ErrCircuitOpen) Error() string {
	upstream := e.Name
	if upstream == "" {
		upstream = "upstream"
	}
	return "circuit breaker is open: " + upstream + " is failing, retry after " + e.RetryAt.Format(time.RFC3339)
}
