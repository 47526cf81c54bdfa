package breaker

import (
	"testing"
	"time"

	"github.com/malwarebo/orderbridge/models"
)

func newTestBreaker() *Breaker {
	cfg := Config{FailureThreshold: 3, RecoveryTimeout: 50 * time.Millisecond, HalfOpenSuccessCount: 2}
	return FromSnapshot(cfg, &models.Connection{})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	for i := 0; i < 2; i++ {
		b.RecordFailure(now)
		if b.State() != models.BreakerClosed {
			t.Fatalf("State() = %v after %d failures, want closed", b.State(), i+1)
		}
	}

	b.RecordFailure(now)
	if b.State() != models.BreakerOpen {
		t.Fatalf("State() = %v after threshold failures, want open", b.State())
	}
	if b.Allow(now) {
		t.Fatal("Allow() = true while open and before recovery timeout")
	}
}

func TestBreakerHalfOpenRequiresTwoSuccesses(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordFailure(now)
	if b.State() != models.BreakerOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	later := now.Add(100 * time.Millisecond)
	if !b.Allow(later) {
		t.Fatal("Allow() = false after recovery timeout elapsed")
	}
	if b.State() != models.BreakerHalfOpen {
		t.Fatalf("State() = %v after recovery timeout, want half_open", b.State())
	}

	b.RecordSuccess(later)
	if b.State() != models.BreakerHalfOpen {
		t.Fatalf("State() = %v after one half-open success, want still half_open", b.State())
	}

	b.RecordSuccess(later)
	if b.State() != models.BreakerClosed {
		t.Fatalf("State() = %v after two half-open successes, want closed", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()
	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordFailure(now)

	later := now.Add(100 * time.Millisecond)
	b.Allow(later) // transitions to half_open

	b.RecordFailure(later)
	if b.State() != models.BreakerOpen {
		t.Fatalf("State() = %v after half-open failure, want open", b.State())
	}
}

func TestRecordSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()
	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordSuccess(now)
	b.RecordFailure(now)
	if b.State() != models.BreakerClosed {
		t.Fatalf("State() = %v, want closed (failure count should have reset)", b.State())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg := Config{FailureThreshold: 3, RecoveryTimeout: 50 * time.Millisecond, HalfOpenSuccessCount: 2}
	now := time.Now()

	conn := &models.Connection{}
	b := FromSnapshot(cfg, conn)
	b.RecordFailure(now)
	b.RecordFailure(now)
	b.Snapshot(conn)

	if conn.BreakerFailureCount != 2 {
		t.Fatalf("BreakerFailureCount = %d, want 2", conn.BreakerFailureCount)
	}
	if conn.BreakerState != models.BreakerClosed {
		t.Fatalf("BreakerState = %v, want closed", conn.BreakerState)
	}

	rehydrated := FromSnapshot(cfg, conn)
	rehydrated.RecordFailure(now)
	if rehydrated.State() != models.BreakerOpen {
		t.Fatalf("State() = %v, want open after rehydrated third failure", rehydrated.State())
	}
}

func TestReset(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()
	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordFailure(now)
	if b.State() != models.BreakerOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != models.BreakerClosed {
		t.Fatalf("State() = %v after Reset(), want closed", b.State())
	}
	if !b.Allow(now) {
		t.Fatal("Allow() = false immediately after Reset()")
	}
}
