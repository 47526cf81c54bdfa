package store

import (
	"testing"
	"time"

	"github.com/malwarebo/orderbridge/models"
)

func TestRetryItemLifecycle(t *testing.T) {
	s := newTestStore(t)
	connID := seedConnection(t, s, "acme")
	repo := NewRetryItemRepo(s)

	past := time.Now().Add(-time.Minute)
	item, err := repo.Enqueue(connID, 100, "2026-01-01 00:00:00", `{"order_id":100}`, "connection refused", 1, past)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	due, err := repo.DueForConnection(connID, time.Now())
	if err != nil {
		t.Fatalf("DueForConnection() error = %v", err)
	}
	if len(due) != 1 || due[0].ID != item.ID {
		t.Fatalf("DueForConnection() = %+v, want one item matching %d", due, item.ID)
	}

	next := time.Now().Add(30 * time.Second)
	if err := repo.RecordAttempt(item.ID, 2, "still failing", &next, models.RetryPending); err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}

	notDue, err := repo.DueForConnection(connID, time.Now())
	if err != nil {
		t.Fatalf("DueForConnection() error = %v", err)
	}
	if len(notDue) != 0 {
		t.Fatalf("DueForConnection() = %+v, want none after reschedule into the future", notDue)
	}

	fetched, err := repo.GetByID(item.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if fetched.Attempts != 2 || fetched.LastError != "still failing" {
		t.Fatalf("item after RecordAttempt() = %+v", fetched)
	}

	if err := repo.Discard(item.ID); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	fetched, err = repo.GetByID(item.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if fetched.Status != models.RetryDiscarded {
		t.Fatalf("Status = %v, want discarded", fetched.Status)
	}

	if err := repo.Delete(item.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(item.ID); err == nil {
		t.Fatal("GetByID() after Delete() = nil error, want not-found")
	}
}

func TestRetryItemForConnectionFiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	connID := seedConnection(t, s, "acme")
	repo := NewRetryItemRepo(s)

	now := time.Now()
	if _, err := repo.Enqueue(connID, 100, "2026-01-01 00:00:00", "{}", "", 1, now); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	discarded, err := repo.Enqueue(connID, 101, "2026-01-01 00:00:00", "{}", "", 1, now)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := repo.Discard(discarded.ID); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}

	pending, err := repo.ForConnection(connID, models.RetryPending)
	if err != nil {
		t.Fatalf("ForConnection() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ForConnection(pending) = %d items, want 1", len(pending))
	}

	all, err := repo.ForConnection(connID, "")
	if err != nil {
		t.Fatalf("ForConnection() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ForConnection(\"\") = %d items, want 2", len(all))
	}
}

func TestDueForConnectionIsScopedPerConnection(t *testing.T) {
	s := newTestStore(t)
	connA := seedConnection(t, s, "acme")
	connB := seedConnection(t, s, "beta")
	repo := NewRetryItemRepo(s)

	past := time.Now().Add(-time.Minute)
	if _, err := repo.Enqueue(connA, 100, "2026-01-01 00:00:00", "{}", "", 1, past); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := repo.Enqueue(connB, 200, "2026-01-01 00:00:00", "{}", "", 1, past); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	due, err := repo.DueForConnection(connA, time.Now())
	if err != nil {
		t.Fatalf("DueForConnection() error = %v", err)
	}
	if len(due) != 1 || due[0].OdooOrderID != 100 {
		t.Fatalf("DueForConnection(connA) = %+v, want only connA's item", due)
	}
}
