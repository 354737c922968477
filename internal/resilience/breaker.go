// Package resilience protects completion streaming from unhealthy backends.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [Failover] composes several [llm.Provider] backends with per-backend
// breakers so a failing primary is bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

const (
	stateClosed = iota
	stateOpen
	stateHalfOpen
)

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
)

// BreakerOption tunes a [Breaker].
type BreakerOption func(*Breaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
func WithMaxFailures(n int) BreakerOption {
	return func(b *Breaker) { b.maxFailures = n }
}

// WithResetTimeout sets how long the breaker stays open before probing.
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.resetTimeout = d }
}

// Breaker is a circuit breaker around one backend. After maxFailures
// consecutive failures it rejects calls with [ErrBreakerOpen] until the reset
// timeout elapses; then a single probe call is let through, and its outcome
// decides whether the breaker closes again or re-opens.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       int
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker creates a closed [Breaker]. name appears in log messages.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:         name,
		maxFailures:  defaultMaxFailures,
		resetTimeout: defaultResetTimeout,
	}
	for _, o := range opts {
		o(b)
	}
	if b.maxFailures <= 0 {
		b.maxFailures = defaultMaxFailures
	}
	if b.resetTimeout <= 0 {
		b.resetTimeout = defaultResetTimeout
	}
	return b
}

// Do runs fn if the breaker allows it and feeds the outcome back into the
// breaker state.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case stateOpen:
		if time.Since(b.lastFailure) < b.resetTimeout {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = stateHalfOpen
		b.probing = false
		slog.Info("breaker half-open", "name", b.name)
		fallthrough
	case stateHalfOpen:
		if b.probing {
			// Another goroutine holds the probe slot.
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probing = true
	}
	probe := b.state == stateHalfOpen
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if err != nil {
		b.lastFailure = time.Now()
		if probe {
			b.state = stateOpen
			slog.Warn("breaker re-opened after failed probe", "name", b.name)
			return err
		}
		b.failures++
		if b.state == stateClosed && b.failures >= b.maxFailures {
			b.state = stateOpen
			slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
		}
		return err
	}
	if b.state != stateClosed {
		slog.Info("breaker closed", "name", b.name)
	}
	b.state = stateClosed
	b.failures = 0
	return nil
}

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.lastFailure) < b.resetTimeout
}
