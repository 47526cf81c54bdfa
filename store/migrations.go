package store

import (
	"gorm.io/gorm"

	"github.com/malwarebo/orderbridge/errs"
)

// Migration is one versioned schema step. Steps run in the order they are
// added, recorded in schema_migrations so a restart doesn't reapply them.
type Migration struct {
	Version string
	Name    string
	Up      func(*gorm.DB) error
}

type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{db: db}
}

func (m *Migrator) AddMigration(version, name string, up func(*gorm.DB) error) {
	m.migrations = append(m.migrations, Migration{Version: version, Name: name, Up: up})
}

func (m *Migrator) Up() error {
	if err := m.createMigrationsTable(); err != nil {
		return err
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.Version] {
			continue
		}
		if err := migration.Up(m.db); err != nil {
			return errs.Wrap(errs.Persistence, "apply migration "+migration.Version, err)
		}
		if err := m.recordMigration(migration.Version, migration.Name); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) createMigrationsTable() error {
	return m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`).Error
}

func (m *Migrator) getAppliedMigrations() (map[string]bool, error) {
	var results []struct{ Version string }
	if err := m.db.Table("schema_migrations").Select("version").Find(&results).Error; err != nil {
		return nil, errs.Wrap(errs.Persistence, "read schema_migrations", err)
	}
	applied := make(map[string]bool, len(results))
	for _, r := range results {
		applied[r.Version] = true
	}
	return applied, nil
}

func (m *Migrator) recordMigration(version, name string) error {
	return m.db.Exec(`
		INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		ON CONFLICT(version) DO NOTHING
	`, version, name).Error
}

// Status reports each migration and whether it has been applied; used by
// the `migrate` operator command, which runs after store.Open has already
// applied any pending steps.
func (m *Migrator) Status() ([]MigrationStatus, error) {
	applied, err := m.getAppliedMigrations()
	if err != nil {
		return nil, err
	}
	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: applied[mig.Version],
		})
	}
	return statuses, nil
}

type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}
