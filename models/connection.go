// Package models holds the GORM entities persisted by the polling engine.
package models

import "time"

// BreakerState mirrors the three states of the per-connection circuit
// breaker, persisted so operator commands and restarts preserve gating.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Connection is one configured Odoo instance and its webhook target.
// api_key and webhook_secret are stored encrypted; the store's Connection
// accessor decrypts them transparently on read.
type Connection struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`

	BaseURL string `gorm:"not null"`
	DBName  string `gorm:"column:db_name;not null"`
	Login   string `gorm:"not null"`

	APIKeyEncrypted        string `gorm:"column:api_key_encrypted;not null"`
	WebhookSecretEncrypted string `gorm:"column:webhook_secret_encrypted;not null"`

	WebhookURL         string `gorm:"not null"`
	PollIntervalSecond int    `gorm:"column:poll_interval_seconds;not null"`

	Enabled       bool       `gorm:"not null;default:true"`
	LastSyncAt    *time.Time
	LastSuccessAt *time.Time

	BreakerState             BreakerState `gorm:"column:breaker_state;not null;default:closed"`
	BreakerFailureCount      int          `gorm:"column:breaker_failure_count;not null;default:0"`
	BreakerOpenUntil         *time.Time   `gorm:"column:breaker_open_until"`
	BreakerHalfOpenSuccesses int          `gorm:"column:breaker_half_open_successes;not null;default:0"`

	// Health fields mirror the shape of the breaker fields above but track
	// raw endpoint reachability rather than gating: a breaker can still be
	// open on a connection whose endpoint has since recovered, and this is
	// what the `status` command reports to tell the two apart.
	HealthStatus              string     `gorm:"column:health_status;not null;default:unknown"`
	HealthCheckedAt           *time.Time `gorm:"column:health_checked_at"`
	HealthConsecutiveFailures int        `gorm:"column:health_consecutive_failures;not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time

	SentOrders []SentOrder `gorm:"constraint:OnDelete:CASCADE"`
	RetryItems []RetryItem `gorm:"constraint:OnDelete:CASCADE"`
	SyncLogs   []SyncLog   `gorm:"constraint:OnDelete:CASCADE"`
}

func (Connection) TableName() string { return "connections" }

// EffectivePollInterval applies the deployment-wide floor.
func (c *Connection) EffectivePollInterval(minSeconds int) time.Duration {
	interval := c.PollIntervalSecond
	if interval < minSeconds {
		interval = minSeconds
	}
	return time.Duration(interval) * time.Second
}
