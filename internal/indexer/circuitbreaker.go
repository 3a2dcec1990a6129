package indexer

import (
	"sync"
	"time"
)

// CircuitState is one of the three states of spec.md §4.4's breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig parameterizes the breaker, generalized from the
// teacher's indexer/status escalation-level service (internal/indexer/
// status/service.go: consecutive-failure escalation with an
// exponential backoff window) into an explicit three-state machine.
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

// CircuitBreaker tracks consecutive failures for a single indexer.
type CircuitBreaker struct {
	mu               sync.Mutex
	cfg              CircuitBreakerConfig
	state            CircuitState
	consecutiveFails int
	openedAt         time.Time
	halfOpenProbing  bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 5 * time.Minute
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

// Allow reports whether a request may proceed, transitioning open ->
// half-open once OpenDuration has elapsed and reserving the single
// probe slot for the caller that observes the transition.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		if b.halfOpenProbing {
			return false
		}
		b.halfOpenProbing = true
		return true
	default: // open
		if time.Since(b.openedAt) < b.cfg.OpenDuration {
			return false
		}
		b.state = CircuitHalfOpen
		b.halfOpenProbing = true
		return true
	}
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.consecutiveFails = 0
	b.halfOpenProbing = false
}

// RecordFailure increments the failure count, opening the circuit when
// the threshold is crossed or immediately re-opening it on a failed
// half-open probe.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitHalfOpen {
		b.open()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.cfg.FailureThreshold {
		b.open()
	}
}

func (b *CircuitBreaker) open() {
	b.state = CircuitOpen
	b.openedAt = time.Now()
	b.halfOpenProbing = false
}

// State reports the breaker's current state for health reporting.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
