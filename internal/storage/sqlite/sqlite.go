// Package sqlite stores alerts and scrape runs in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/casalert/internal/storage/migrations"
)

// Store implements the alert store and run recorder on SQLite
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// New opens (creating if needed) the database at path and migrates its schema
func New(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL lets status/export read while a watch loop writes
	dsn := "file:" + filepath.ToSlash(path) +
		"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	applied, err := migrations.NewManager(schema...).Apply(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if applied > 0 {
		logger.Debug("applied schema migrations", "count", applied, "path", path)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logger.With("component", "store", "backend", "sqlite"),
	}, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
