package tameng

import (
	"sync/atomic"
	"time"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name for logs and stats.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards the backing store against repeated failures. All
// fields are manipulated atomically; the Open -> HalfOpen probe admission is
// a CAS so exactly one caller wins the probe.
type CircuitBreaker struct {
	config        CircuitBreakerConfig
	state         int64
	failures      int64
	successes     int64
	lastFailure   int64 // unix nanos
	halfOpenSince int64 // unix nanos
}

// CircuitBreakerSnapshot is a point-in-time view of breaker state.
type CircuitBreakerSnapshot struct {
	State         CircuitState
	Failures      int
	Successes     int
	LastFailure   time.Time
	HalfOpenSince time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 3
	}

	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// Allow checks if the guarded call should proceed. While open, the breaker
// rejects everything until RecoveryTimeout has elapsed since the last
// failure; the first caller after that wins the half-open probe.
func (cb *CircuitBreaker) Allow() bool {
	now := time.Now().UnixNano()
	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed:
		return true
	case StateOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailure)
		if now-lastFailure >= int64(cb.config.RecoveryTimeout) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&cb.successes, 0)
				atomic.StoreInt64(&cb.halfOpenSince, now)
				return true
			}
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordFailure records a failure. Reaching the failure threshold while
// closed opens the breaker; any failure while half-open reopens it and
// restarts the recovery clock.
func (cb *CircuitBreaker) RecordFailure() {
	now := time.Now().UnixNano()
	atomic.StoreInt64(&cb.lastFailure, now)

	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed:
		failures := atomic.AddInt64(&cb.failures, 1)
		if failures >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateOpen:
		// Already open, just refresh lastFailure
	case StateHalfOpen:
		atomic.AddInt64(&cb.failures, 1)
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.successes, 0)
	}
}

// RecordSuccess records a success. Reaching the success threshold while
// half-open closes the breaker and resets both counters.
func (cb *CircuitBreaker) RecordSuccess() {
	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed:
		// Below threshold; nothing to do
	case StateOpen:
		// Success cannot occur while open
	case StateHalfOpen:
		successes := atomic.AddInt64(&cb.successes, 1)
		if successes >= int64(cb.config.SuccessThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateClosed))
			atomic.StoreInt64(&cb.failures, 0)
			atomic.StoreInt64(&cb.successes, 0)
		}
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

// Snapshot returns a consistent-enough view of the breaker for stats and
// metrics; individual fields are loaded atomically but not as one unit.
func (cb *CircuitBreaker) Snapshot() CircuitBreakerSnapshot {
	snap := CircuitBreakerSnapshot{
		State:     CircuitState(atomic.LoadInt64(&cb.state)),
		Failures:  int(atomic.LoadInt64(&cb.failures)),
		Successes: int(atomic.LoadInt64(&cb.successes)),
	}
	if lf := atomic.LoadInt64(&cb.lastFailure); lf > 0 {
		snap.LastFailure = time.Unix(0, lf)
	}
	if ho := atomic.LoadInt64(&cb.halfOpenSince); ho > 0 {
		snap.HalfOpenSince = time.Unix(0, ho)
	}
	return snap
}
