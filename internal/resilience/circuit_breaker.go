// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package resilience guards outbound dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/guardian/internal/metrics"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// CircuitBreaker stops hammering a dependency that keeps failing. After
// threshold consecutive counted failures it opens; once resetTimeout has
// passed exactly one probe call is let through. A successful probe closes
// the breaker, a failed one reopens it.
//
// Errors the failure predicate rejects (a bad recipient, a cancelled caller)
// pass through without counting.
type CircuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	clock        clock
	isFailure    func(error) bool

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

type Option func(*CircuitBreaker)

func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithFailurePredicate limits which errors count toward tripping the breaker.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.isFailure = fn
		}
	}
}

func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	cb := &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        wallClock{},
		isFailure:    func(err error) bool { return err != nil },
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetCircuitBreakerState(cb.name, string(cb.state))
	return cb
}

// Execute runs fn unless the breaker rejects it with ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.acquire()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// Allow reports whether a call would currently be admitted. It never changes
// state, so a caller can check availability without consuming the probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if !cb.cooledDown() {
			return ErrCircuitOpen
		}
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
	}
	return nil
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.clock.Now().Sub(cb.openedAt) > cb.resetTimeout
}

// acquire admits a call and reports whether it is the half-open probe.
func (cb *CircuitBreaker) acquire() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if !cb.cooledDown() {
			return false, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
	}
	if cb.probing {
		return false, ErrCircuitOpen
	}
	cb.probing = true
	return true, nil
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	counted := err != nil && cb.isFailure(err)
	switch {
	case err == nil:
		cb.failures = 0
		cb.setState(StateClosed)
	case !counted:
		// An uncounted error from the probe says nothing about the
		// dependency; the next call probes again.
	case cb.state == StateHalfOpen:
		metrics.RecordCircuitBreakerTrip(cb.name, "probe_failed")
		cb.setState(StateOpen)
	default:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.threshold {
			metrics.RecordCircuitBreakerTrip(cb.name, "threshold_exceeded")
			cb.setState(StateOpen)
		}
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(s State) {
	if cb.state == s {
		return
	}
	cb.state = s
	switch s {
	case StateOpen:
		cb.openedAt = cb.clock.Now()
	case StateClosed:
		cb.failures = 0
	}
	metrics.SetCircuitBreakerState(cb.name, string(s))
}
