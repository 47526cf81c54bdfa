package models

import "time"

// SentOrder is the dedup record: an order identity that has already been
// delivered. Its composite natural key (connection_id, odoo_order_id,
// write_date) is the idempotence anchor for the whole system. Rows are
// never mutated once inserted.
type SentOrder struct {
	ID           uint   `gorm:"primaryKey"`
	ConnectionID uint   `gorm:"uniqueIndex:idx_sent_order_identity;not null"`
	OdooOrderID  int    `gorm:"column:odoo_order_id;uniqueIndex:idx_sent_order_identity;not null"`
	WriteDate    string `gorm:"uniqueIndex:idx_sent_order_identity;not null"`

	PayloadHash string `gorm:"not null"`
	DeliveredAt time.Time
}

func (SentOrder) TableName() string { return "sent_orders" }
