// Package breaker implements the per-connection circuit breaker: a
// three-state gate (closed/open/half-open) that short-circuits poll cycles
// when a remote Odoo instance is unhealthy. It is adapted from the
// in-house resilience breaker pattern, but made durable: every state
// transition is mirrored onto the owning Connection row so operator
// commands and process restarts preserve gating.
package breaker

import (
	"sync"
	"time"

	"github.com/malwarebo/orderbridge/models"
)

// Config carries the three tunables from POLLER_CB_*.
type Config struct {
	FailureThreshold     int
	RecoveryTimeout      time.Duration
	HalfOpenSuccessCount int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:     5,
		RecoveryTimeout:      120 * time.Second,
		HalfOpenSuccessCount: 2,
	}
}

// Breaker is the in-memory, per-connection instance. It is rehydrated from
// the Connection row's snapshot at the start of every cycle and flushed
// back after every RecordSuccess/RecordFailure/Reset.
type Breaker struct {
	cfg Config
	mu  sync.Mutex

	state             models.BreakerState
	failures          int
	halfOpenSuccesses int
	openUntil         time.Time
}

// FromSnapshot rehydrates a Breaker from a Connection's persisted fields.
func FromSnapshot(cfg Config, conn *models.Connection) *Breaker {
	b := &Breaker{
		cfg:               cfg,
		state:             conn.BreakerState,
		failures:          conn.BreakerFailureCount,
		halfOpenSuccesses: conn.BreakerHalfOpenSuccesses,
	}
	if b.state == "" {
		b.state = models.BreakerClosed
	}
	if conn.BreakerOpenUntil != nil {
		b.openUntil = *conn.BreakerOpenUntil
	}
	return b
}

// Snapshot writes the breaker's current fields back onto the Connection so
// the caller can persist them in the same transaction as the rest of the
// cycle's updates.
func (b *Breaker) Snapshot(conn *models.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn.BreakerState = b.state
	conn.BreakerFailureCount = b.failures
	conn.BreakerHalfOpenSuccesses = b.halfOpenSuccesses
	if b.openUntil.IsZero() {
		conn.BreakerOpenUntil = nil
	} else {
		openUntil := b.openUntil
		conn.BreakerOpenUntil = &openUntil
	}
}

// Allow reports whether a cycle may proceed. It also performs the
// OPEN -> HALF_OPEN transition when the recovery timeout has elapsed, since
// that transition is a function of wall-clock time rather than an event.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerClosed, models.BreakerHalfOpen:
		return true
	case models.BreakerOpen:
		if now.Before(b.openUntil) {
			return false
		}
		b.transitionTo(models.BreakerHalfOpen)
		return true
	default:
		return true
	}
}

// State reports the current state without mutating anything.
func (b *Breaker) State() models.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OpenUntil reports the timestamp the breaker will leave OPEN, valid only
// while State() == BreakerOpen.
func (b *Breaker) OpenUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openUntil
}

// RecordSuccess resets the consecutive-failure counter. In HALF_OPEN it
// accumulates successes until the threshold closes the breaker.
func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerClosed:
		b.failures = 0
	case models.BreakerHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccessCount {
			b.transitionTo(models.BreakerClosed)
		}
	}
}

// RecordFailure increments the consecutive-failure counter and may open the
// breaker. A failure while HALF_OPEN always reopens it immediately.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openAt(now)
		}
	case models.BreakerHalfOpen:
		b.openAt(now)
	}
}

// Reset forces CLOSED and zeroes counters; used by the operator
// reset-circuit command.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = models.BreakerClosed
	b.failures = 0
	b.halfOpenSuccesses = 0
	b.openUntil = time.Time{}
}

func (b *Breaker) openAt(now time.Time) {
	b.state = models.BreakerOpen
	b.halfOpenSuccesses = 0
	b.openUntil = now.Add(b.cfg.RecoveryTimeout)
}

func (b *Breaker) transitionTo(state models.BreakerState) {
	b.state = state
	b.failures = 0
	b.halfOpenSuccesses = 0
	if state != models.BreakerOpen {
		b.openUntil = time.Time{}
	}
}
