// Package storage defines the persistent alert store and selects a backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/storage/mongo"
	"github.com/steveyegge/casalert/internal/storage/sheets"
	"github.com/steveyegge/casalert/internal/storage/sqlite"
	"github.com/steveyegge/casalert/internal/types"
)

// ErrUnknownBackend is returned for a store backend name New does not recognise
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is the append-only table of known alerts
type Store interface {
	// GetExistingAlerts returns every readable stored alert in append order
	GetExistingAlerts(ctx context.Context) ([]*types.Alert, error)

	// Append adds alerts after the existing rows, preserving their order
	Append(ctx context.Context, alerts []*types.Alert) error

	// PruneDuplicateHashes removes rows whose Hash ID already appears on an
	// earlier row and returns how many were removed
	PruneDuplicateHashes(ctx context.Context) (int, error)

	Close() error
}

// RunRecorder is implemented by stores that keep scrape run history
type RunRecorder interface {
	RecordRun(ctx context.Context, run *types.ScrapeRun) error
	ListRuns(ctx context.Context, limit int) ([]*types.ScrapeRun, error)
	CleanupRuns(ctx context.Context, cfg config.RunHistoryConfig) (int, error)
}

var (
	_ Store       = (*sqlite.Store)(nil)
	_ RunRecorder = (*sqlite.Store)(nil)
	_ Store       = (*sheets.Store)(nil)
	_ Store       = (*mongo.Store)(nil)
)

// New opens the backend named by cfg.Backend
func New(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	// Each case assigns only on success so a failed open never yields a
	// non-nil interface around a nil pointer
	switch cfg.Backend {
	case config.BackendSQLite, "":
		var s *sqlite.Store
		if s, err = sqlite.New(ctx, cfg.SQLite.Path, logger); err == nil {
			store = s
		}
	case config.BackendSheets:
		var s *sheets.Store
		if s, err = sheets.New(ctx, cfg.Sheets, logger); err == nil {
			store = s
		}
	case config.BackendMongo:
		var s *mongo.Store
		if s, err = mongo.New(ctx, cfg.Mongo, logger); err == nil {
			store = s
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", backendName(cfg.Backend), err)
	}
	return store, nil
}

func backendName(backend string) string {
	if backend == "" {
		return config.BackendSQLite
	}
	return backend
}
