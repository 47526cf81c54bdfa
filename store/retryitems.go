package store

import (
	"time"

	"github.com/malwarebo/orderbridge/errs"
	"github.com/malwarebo/orderbridge/models"
)

type RetryItemRepo struct {
	store *Store
}

func NewRetryItemRepo(s *Store) *RetryItemRepo {
	return &RetryItemRepo{store: s}
}

// Enqueue inserts a pending retry row for a webhook delivery that failed
// transiently. attempts starts at the number of attempts already made
// (including the initial delivery try), and nextAttemptAt is computed by
// the caller from the discrete backoff schedule.
func (r *RetryItemRepo) Enqueue(connectionID uint, odooOrderID int, writeDate, payloadSnapshot, lastError string, attempts int, nextAttemptAt time.Time) (*models.RetryItem, error) {
	item := &models.RetryItem{
		ConnectionID:    connectionID,
		OdooOrderID:     odooOrderID,
		WriteDate:       writeDate,
		PayloadSnapshot: payloadSnapshot,
		Attempts:        attempts,
		NextAttemptAt:   nextAttemptAt,
		LastError:       lastError,
		Status:          models.RetryPending,
	}
	if err := r.store.DB().Create(item).Error; err != nil {
		return nil, errs.Wrap(errs.Persistence, "enqueue retry item", err)
	}
	return item, nil
}

// DueForConnection returns one connection's pending retry items whose
// next_attempt_at has elapsed, for the worker's per-cycle retry sweep.
func (r *RetryItemRepo) DueForConnection(connectionID uint, cutoff time.Time) ([]models.RetryItem, error) {
	var items []models.RetryItem
	err := r.store.DB().
		Where("connection_id = ? AND status = ? AND next_attempt_at <= ?", connectionID, models.RetryPending, cutoff).
		Order("next_attempt_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, errs.Wrap(errs.Persistence, "query due retry items", err)
	}
	return items, nil
}

// ForConnection lists retry items for one connection, optionally filtered
// by status; used by the `status` operator command.
func (r *RetryItemRepo) ForConnection(connectionID uint, status models.RetryStatus) ([]models.RetryItem, error) {
	q := r.store.DB().Where("connection_id = ?", connectionID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var items []models.RetryItem
	if err := q.Order("next_attempt_at ASC").Find(&items).Error; err != nil {
		return nil, errs.Wrap(errs.Persistence, "list connection retry items", err)
	}
	return items, nil
}

func (r *RetryItemRepo) GetByID(id uint) (*models.RetryItem, error) {
	var item models.RetryItem
	if err := r.store.DB().First(&item, id).Error; err != nil {
		return nil, errs.Wrap(errs.Persistence, "get retry item", err)
	}
	return &item, nil
}

// RecordAttempt overwrites a retry item's attempts, last error and status
// with the values given, and its next_attempt_at when nextAttemptAt is
// non-nil. It never removes the row; a delivered item is removed with
// Delete.
func (r *RetryItemRepo) RecordAttempt(id uint, attempts int, lastError string, nextAttemptAt *time.Time, status models.RetryStatus) error {
	updates := map[string]interface{}{
		"attempts":   attempts,
		"last_error": lastError,
		"status":     status,
	}
	if nextAttemptAt != nil {
		updates["next_attempt_at"] = *nextAttemptAt
	}
	if err := r.store.DB().Model(&models.RetryItem{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errs.Wrap(errs.Persistence, "record retry attempt", err)
	}
	return nil
}

// Discard is the effect of the `discard` operator command: mark the item
// discarded rather than deleting it, preserving the audit trail.
func (r *RetryItemRepo) Discard(id uint) error {
	err := r.store.DB().Model(&models.RetryItem{}).Where("id = ?", id).
		Update("status", models.RetryDiscarded).Error
	if err != nil {
		return errs.Wrap(errs.Persistence, "discard retry item", err)
	}
	return nil
}

// Delete removes a retry item outright once it has been delivered
// successfully; there is no further reason to keep it in the queue.
func (r *RetryItemRepo) Delete(id uint) error {
	if err := r.store.DB().Delete(&models.RetryItem{}, id).Error; err != nil {
		return errs.Wrap(errs.Persistence, "delete retry item", err)
	}
	return nil
}
