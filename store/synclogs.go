package store

import (
	"github.com/malwarebo/orderbridge/errs"
	"github.com/malwarebo/orderbridge/models"
)

type SyncLogRepo struct {
	store *Store
}

func NewSyncLogRepo(s *Store) *SyncLogRepo {
	return &SyncLogRepo{store: s}
}

// Append records one poll cycle's outcome. Called at the end of every
// cycle regardless of whether it succeeded, so the `status` command can
// show the last attempt even after a run of failures.
func (r *SyncLogRepo) Append(log *models.SyncLog) error {
	if err := r.store.DB().Create(log).Error; err != nil {
		return errs.Wrap(errs.Persistence, "append sync log", err)
	}
	return nil
}

// Recent returns the most recent cycle logs for a connection, newest first,
// for the `status` operator command.
func (r *SyncLogRepo) Recent(connectionID uint, limit int) ([]models.SyncLog, error) {
	var logs []models.SyncLog
	err := r.store.DB().
		Where("connection_id = ?", connectionID).
		Order("started_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, errs.Wrap(errs.Persistence, "list recent sync logs", err)
	}
	return logs, nil
}
