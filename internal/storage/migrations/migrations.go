// Package migrations versions the SQLite alert store schema.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Migration is one forward step of the schema with its inverse
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Manager applies registered migrations in version order
type Manager struct {
	migrations []Migration
}

// NewManager creates a manager holding the given migrations
func NewManager(migrations ...Migration) *Manager {
	m := &Manager{}
	for _, mig := range migrations {
		m.Register(mig)
	}
	return m
}

// Register adds a migration
func (m *Manager) Register(migration Migration) {
	m.migrations = append(m.migrations, migration)
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
}

// Latest returns the highest registered version, or 0 when none are registered
func (m *Manager) Latest() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// Apply runs every migration newer than the database's recorded version.
// Each migration runs in its own transaction together with its version row.
func (m *Manager) Apply(ctx context.Context, db *sql.DB) (int, error) {
	if err := createVersionTable(ctx, db); err != nil {
		return 0, fmt.Errorf("failed to create version table: %w", err)
	}
	current, err := Version(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	applied := 0
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.run(ctx, db, mig.Up, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
				mig.Version, mig.Description, time.Now().UTC().Format(time.RFC3339))
			return err
		}); err != nil {
			return applied, fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Description, err)
		}
		applied++
	}
	return applied, nil
}

// Rollback reverts the most recently applied migration
func (m *Manager) Rollback(ctx context.Context, db *sql.DB) error {
	current, err := Version(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if current == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	for _, mig := range m.migrations {
		if mig.Version != current {
			continue
		}
		if err := m.run(ctx, db, mig.Down, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", mig.Version)
			return err
		}); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", mig.Version, err)
		}
		return nil
	}
	return fmt.Errorf("migration %d not found", current)
}

func (m *Manager) run(ctx context.Context, db *sql.DB, stmt string, record func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if err := record(tx); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// Version returns the highest applied version, 0 for a fresh database
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}
