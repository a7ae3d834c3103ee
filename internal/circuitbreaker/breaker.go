// Package circuitbreaker suspends CI status checks for jobs whose endpoint
// keeps failing at the transport level.
//
// The breaker is keyed by job name: one flaky job URL must not stop
// reconciliation of healthy jobs. A suppressed check surfaces to callers as
// an Unknown status, so an open circuit can never terminate a tracked build.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type jobState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*jobState
	threshold int
	cooldown  time.Duration
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*jobState),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a status check for the job may proceed.
// When the cooldown of an open circuit has elapsed, exactly one probe
// check is let through (half-open); its outcome decides the next state.
func (cb *CircuitBreaker) Allow(job string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[job]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess marks a definitive CI response for the job. Any HTTP
// response counts, including "build not found"; only transport failures
// trip the breaker.
func (cb *CircuitBreaker) RecordSuccess(job string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[job]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

// RecordFailure marks a transport-level failure for the job.
func (cb *CircuitBreaker) RecordFailure(job string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[job]
	if !ok {
		s = &jobState{}
		cb.states[job] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = time.Now()
	}
}
