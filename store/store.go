// Package store is the Persistence Layer: a GORM-backed SQLite database
// with write-ahead logging and foreign keys enabled, exposing
// repository-style operations per entity.
package store

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/malwarebo/orderbridge/errs"
	"github.com/malwarebo/orderbridge/models"
)

// Store is the single shared database handle. Writes serialize through
// GORM's transaction mechanism; SQLite's own locking plus WAL mode makes
// that safe for the external CLI to read Connection/RetryItem rows
// concurrently.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite file at path with WAL journaling and foreign
// keys enabled, then applies pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Persistence, "open database", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for repositories in this package only.
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errs.Wrap(errs.Persistence, "get sql.DB", err)
	}
	return sqlDB.Close()
}

// Ping verifies the database connection is alive, for the /health endpoint.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errs.Wrap(errs.Persistence, "get sql.DB", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return errs.Wrap(errs.Persistence, "ping database", err)
	}
	return nil
}

// WithTransaction runs fn inside a single GORM transaction. Callers use it
// to commit a cycle's SentOrder insert and last_sync_at bump together.
func (s *Store) WithTransaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

func (s *Store) migrator() *Migrator {
	m := NewMigrator(s.db)
	m.AddMigration("0001", "create_core_tables", func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&models.Connection{},
			&models.SentOrder{},
			&models.RetryItem{},
			&models.SyncLog{},
		)
	})
	m.AddMigration("0002", "add_connection_health_snapshot", func(tx *gorm.DB) error {
		return tx.AutoMigrate(&models.Connection{})
	})
	return m
}

func (s *Store) migrate() error {
	return s.migrator().Up()
}

// MigrationStatus reports which schema migrations are outstanding, for the
// `migrate` operator command.
func (s *Store) MigrationStatus() ([]MigrationStatus, error) {
	return s.migrator().Status()
}
