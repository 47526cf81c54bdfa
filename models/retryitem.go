package models

import "time"

type RetryStatus string

const (
	RetryPending   RetryStatus = "pending"
	RetryExhausted RetryStatus = "exhausted"
	RetryDiscarded RetryStatus = "discarded"
)

// RetryItem is created when a webhook delivery fails transiently. A
// successful retry inserts a SentOrder and deletes the RetryItem.
type RetryItem struct {
	ID           uint   `gorm:"primaryKey"`
	ConnectionID uint   `gorm:"index;not null"`
	OdooOrderID  int    `gorm:"column:odoo_order_id;not null"`
	WriteDate    string `gorm:"not null"`

	PayloadSnapshot string `gorm:"not null"` // JSON-encoded OrderPayload

	Attempts      int         `gorm:"not null;default:0"`
	NextAttemptAt time.Time   `gorm:"index;not null"`
	LastError     string
	Status        RetryStatus `gorm:"index;not null;default:pending"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RetryItem) TableName() string { return "retry_queue" }
