package client

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the peer while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the state of a CircuitBreaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
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

// CircuitBreaker stops calls after FailureThreshold consecutive failures.
// After OpenTimeout it lets calls through again (half-open) and closes once
// SuccessThreshold of them succeeded. A failure while half-open reopens it.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	now              func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: max(failureThreshold, 1),
		successThreshold: max(successThreshold, 1),
		openTimeout:      openTimeout,
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen if a call must not be made now
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) < b.openTimeout {
		return ErrCircuitOpen
	}
	b.transition(CircuitHalfOpen)
	return nil
}

// Success records a successful call
func (b *CircuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.transition(CircuitClosed)
		}
	case CircuitClosed:
		b.failures = 0
	}
}

// Failure records a failed call
func (b *CircuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	switch b.state {
	case CircuitClosed:
		if b.failures >= b.failureThreshold {
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.transition(CircuitOpen)
	}
}

// State returns the current state. An open breaker whose timeout elapsed
// still reports open until the next Allow.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) transition(to CircuitState) {
	if b.state == to {
		return
	}
	Logger.Infof("circuit breaker %s -> %s", b.state, to)
	b.state = to
	b.failures = 0
	b.successes = 0
}
