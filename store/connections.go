package store

import (
	"time"

	"github.com/malwarebo/orderbridge/crypto"
	"github.com/malwarebo/orderbridge/errs"
	"github.com/malwarebo/orderbridge/models"
)

// ConnectionRepo wraps Connection access, transparently encrypting
// APIKey/WebhookSecret on write and decrypting on read so no other
// component ever sees ciphertext or has to know it exists.
type ConnectionRepo struct {
	store     *Store
	encryptor *crypto.Encryptor
}

func NewConnectionRepo(s *Store, enc *crypto.Encryptor) *ConnectionRepo {
	return &ConnectionRepo{store: s, encryptor: enc}
}

// DecryptedConnection is the plaintext view of a Connection handed to the
// worker. It never touches disk directly.
type DecryptedConnection struct {
	models.Connection
	APIKey        string
	WebhookSecret string
}

func (r *ConnectionRepo) decorate(c models.Connection) (*DecryptedConnection, error) {
	apiKey, err := r.encryptor.Decrypt(c.APIKeyEncrypted)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "decrypt api_key", err)
	}
	secret, err := r.encryptor.Decrypt(c.WebhookSecretEncrypted)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "decrypt webhook_secret", err)
	}
	return &DecryptedConnection{Connection: c, APIKey: apiKey, WebhookSecret: secret}, nil
}

// ListEnabled returns a fresh snapshot of every enabled connection. Called
// at the top of every scheduler reconciliation pass.
func (r *ConnectionRepo) ListEnabled() ([]*DecryptedConnection, error) {
	var rows []models.Connection
	if err := r.store.DB().Where("enabled = ?", true).Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.Persistence, "list enabled connections", err)
	}
	out := make([]*DecryptedConnection, 0, len(rows))
	for _, row := range rows {
		dc, err := r.decorate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, nil
}

// GetByID fetches a fresh snapshot of one connection regardless of its
// enabled flag (used by the `test` operator command and by each scheduler
// task's refresh between cycles).
func (r *ConnectionRepo) GetByID(id uint) (*DecryptedConnection, error) {
	var row models.Connection
	if err := r.store.DB().First(&row, id).Error; err != nil {
		return nil, errs.Wrap(errs.Persistence, "get connection", err)
	}
	return r.decorate(row)
}

// Create encrypts and inserts a new connection.
func (r *ConnectionRepo) Create(c *DecryptedConnection) error {
	encAPIKey, err := r.encryptor.Encrypt(c.APIKey)
	if err != nil {
		return errs.Wrap(errs.Crypto, "encrypt api_key", err)
	}
	encSecret, err := r.encryptor.Encrypt(c.WebhookSecret)
	if err != nil {
		return errs.Wrap(errs.Crypto, "encrypt webhook_secret", err)
	}
	c.APIKeyEncrypted = encAPIKey
	c.WebhookSecretEncrypted = encSecret
	enabled := c.Enabled
	if err := r.store.DB().Create(&c.Connection).Error; err != nil {
		return errs.Wrap(errs.Persistence, "create connection", err)
	}
	// GORM substitutes the column default (true) for a false bool on insert,
	// so a connection created disabled is written back explicitly.
	if !enabled {
		if err := r.store.DB().Model(&models.Connection{}).Where("id = ?", c.ID).Update("enabled", false).Error; err != nil {
			return errs.Wrap(errs.Persistence, "create connection", err)
		}
		c.Enabled = false
	}
	return nil
}

// UpdateCycleOutcome persists last_sync_at, last_success_at, and the
// breaker snapshot together after one poll cycle. last_sync_at is only
// ever advanced (see the caller in worker), never rewound, so the
// monotonicity invariant holds at the storage boundary too.
func (r *ConnectionRepo) UpdateCycleOutcome(id uint, lastSyncAt *time.Time, lastSuccessAt *time.Time, conn *models.Connection) error {
	updates := map[string]interface{}{
		"breaker_state":              conn.BreakerState,
		"breaker_failure_count":      conn.BreakerFailureCount,
		"breaker_open_until":         conn.BreakerOpenUntil,
		"breaker_half_open_successes": conn.BreakerHalfOpenSuccesses,
	}
	if lastSyncAt != nil {
		updates["last_sync_at"] = *lastSyncAt
	}
	if lastSuccessAt != nil {
		updates["last_success_at"] = *lastSuccessAt
	}
	if err := r.store.DB().Model(&models.Connection{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errs.Wrap(errs.Persistence, "update connection cycle outcome", err)
	}
	return nil
}

// UpdateHealthSnapshot persists a connection task's HealthChecker result so
// a separate `status` CLI invocation can report it without needing a live
// probe of its own. checkedAt.IsZero() means no check has run yet (e.g. the
// task just started), in which case the write is skipped rather than
// clobbering a real prior result with an empty one.
func (r *ConnectionRepo) UpdateHealthSnapshot(id uint, status string, checkedAt time.Time, consecutiveFailures int) error {
	if checkedAt.IsZero() {
		return nil
	}
	updates := map[string]interface{}{
		"health_status":               status,
		"health_checked_at":           checkedAt,
		"health_consecutive_failures": consecutiveFailures,
	}
	if err := r.store.DB().Model(&models.Connection{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errs.Wrap(errs.Persistence, "update health snapshot", err)
	}
	return nil
}

// ResetCircuit is the effect of the `reset-circuit` operator command.
func (r *ConnectionRepo) ResetCircuit(id uint) error {
	updates := map[string]interface{}{
		"breaker_state":               models.BreakerClosed,
		"breaker_failure_count":       0,
		"breaker_open_until":          nil,
		"breaker_half_open_successes": 0,
	}
	if err := r.store.DB().Model(&models.Connection{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errs.Wrap(errs.Persistence, "reset circuit", err)
	}
	return nil
}
