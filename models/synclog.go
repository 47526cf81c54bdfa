package models

import "time"

// SyncLog is an append-only ledger row, one per completed cycle including
// cycles short-circuited by the breaker.
type SyncLog struct {
	ID           uint `gorm:"primaryKey"`
	ConnectionID uint `gorm:"index;not null"`

	StartedAt  time.Time `gorm:"not null"`
	FinishedAt time.Time `gorm:"not null"`

	OrdersFound  int `gorm:"not null;default:0"`
	OrdersSent   int `gorm:"not null;default:0"`
	OrdersFailed int `gorm:"not null;default:0"`

	ErrorMessage string
}

func (SyncLog) TableName() string { return "sync_logs" }
