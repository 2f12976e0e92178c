package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards calls to an external service. After maxFailures
// consecutive failures it opens and fails fast; once the timeout elapses
// it lets a few probe calls through, closing again only when they all
// succeed.
type CircuitBreaker struct {
	name             string
	maxFailures      uint32
	timeout          time.Duration
	halfOpenMaxCalls uint32

	mu                sync.Mutex
	state             State
	failures          uint32
	successes         uint32
	requests          uint32
	halfOpenCalls     uint32
	halfOpenSuccesses uint32
	lastFailureTime   time.Time

	logger *logrus.Logger
}

// New creates a circuit breaker with a default logger.
func New(name string, maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	return NewWithLogger(name, maxFailures, timeout, logrus.New())
}

// NewWithLogger creates a circuit breaker with a custom logger.
func NewWithLogger(name string, maxFailures uint32, timeout time.Duration, logger *logrus.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		timeout:          timeout,
		halfOpenMaxCalls: 3,
		state:            StateClosed,
		logger:           logger,
	}
}

// Execute runs fn unless the breaker is open. An open breaker returns a
// *CircuitBreakerError without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return &CircuitBreakerError{Name: cb.name, State: cb.GetState()}
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailureLocked()
		return err
	}
	cb.onSuccessLocked()
	return nil
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

// currentStateLocked applies the open-to-half-open transition once the
// timeout has elapsed. Caller holds the mutex.
func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.timeout {
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.halfOpenSuccesses = 0
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           StateHalfOpen.String(),
		}).Info("Circuit breaker transitioned to half-open")
	}
	return cb.state
}

func (cb *CircuitBreaker) onSuccessLocked() {
	cb.requests++
	cb.successes++

	if cb.state == StateHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMaxCalls {
			cb.state = StateClosed
			cb.failures = 0
			cb.halfOpenCalls = 0
			cb.halfOpenSuccesses = 0
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           StateClosed.String(),
			}).Info("Circuit breaker closed after successful recovery")
		}
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	cb.requests++
	cb.failures++
	cb.lastFailureTime = time.Now()

	tripped := false
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			tripped = true
		}
	case StateHalfOpen:
		tripped = true
	}

	if tripped {
		cb.state = StateOpen
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"failures":        cb.failures,
			"state":           StateOpen.String(),
		}).Warn("Circuit breaker opened due to failures")
	}
}

// GetState returns the current state of the circuit breaker.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Stats is a point-in-time view of the breaker's counters.
type Stats struct {
	Name            string
	State           State
	Failures        uint32
	Requests        uint32
	Successes       uint32
	LastFailureTime time.Time
}

// GetStats returns statistics about the circuit breaker.
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Requests:        cb.requests,
		Successes:       cb.successes,
		LastFailureTime: cb.lastFailureTime,
	}
}

// CircuitBreakerError reports a call rejected by an open breaker.
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsCircuitBreakerError checks whether an error came from an open breaker
// rather than the guarded call itself.
func IsCircuitBreakerError(err error) bool {
	_, ok := err.(*CircuitBreakerError)
	return ok
}
