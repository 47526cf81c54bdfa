package store

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/malwarebo/orderbridge/errs"
	"github.com/malwarebo/orderbridge/models"
)

type SentOrderRepo struct {
	store *Store
}

func NewSentOrderRepo(s *Store) *SentOrderRepo {
	return &SentOrderRepo{store: s}
}

// Exists reports whether an order at this exact write_date has already been
// delivered for this connection. This is the exactly-once-effect check: a
// hit here means the mapper's output for this order is skipped outright.
func (r *SentOrderRepo) Exists(connectionID uint, odooOrderID int, writeDate string) (bool, error) {
	var count int64
	err := r.store.DB().Model(&models.SentOrder{}).
		Where("connection_id = ? AND odoo_order_id = ? AND write_date = ?", connectionID, odooOrderID, writeDate).
		Count(&count).Error
	if err != nil {
		return false, errs.Wrap(errs.Persistence, "check sent order existence", err)
	}
	return count > 0, nil
}

// RecordDeliveredAndAdvanceSync inserts the dedup row and advances the
// connection's last_sync_at to writeDate in the same transaction, per the
// "SentOrder insert precedes last_sync_at advancement" ordering: a crash
// between the two steps must never leave last_sync_at ahead of a delivery
// that was never actually recorded. The last_sync_at update is guarded so
// it only ever moves forward, holding the monotonicity invariant even when
// retries deliver an order older than the connection's current cursor.
func (r *SentOrderRepo) RecordDeliveredAndAdvanceSync(connectionID uint, odooOrderID int, writeDate, payloadHash string) error {
	return r.store.WithTransaction(func(tx *gorm.DB) error {
		row := models.SentOrder{
			ConnectionID: connectionID,
			OdooOrderID:  odooOrderID,
			WriteDate:    writeDate,
			PayloadHash:  payloadHash,
			DeliveredAt:  time.Now(),
		}
		if err := tx.Create(&row).Error; err != nil && !isUniqueConstraintErr(err) {
			return errs.Wrap(errs.Persistence, "record sent order", err)
		}

		parsed, perr := time.Parse("2006-01-02 15:04:05", writeDate)
		if perr != nil {
			return nil
		}
		err := tx.Model(&models.Connection{}).
			Where("id = ? AND (last_sync_at IS NULL OR last_sync_at < ?)", connectionID, parsed).
			Update("last_sync_at", parsed).Error
		if err != nil {
			return errs.Wrap(errs.Persistence, "advance last_sync_at", err)
		}
		return nil
	})
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "unique constraint")
}
