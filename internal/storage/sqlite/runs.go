package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

// runTimeLayout is fixed-width UTC so text ordering matches time ordering
const runTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatRunTime(t time.Time) string {
	return t.UTC().Format(runTimeLayout)
}

// RecordRun inserts the run, or updates it if a run with the same ID exists
func (s *Store) RecordRun(ctx context.Context, run *types.ScrapeRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid scrape run: %w", err)
	}

	scraped, err := json.Marshal(run.Scraped)
	if err != nil {
		return fmt.Errorf("failed to marshal scrape counts: %w", err)
	}
	var finishedAt sql.NullString
	if run.FinishedAt != nil {
		finishedAt = sql.NullString{String: formatRunTime(*run.FinishedAt), Valid: true}
	}

	query := `
		INSERT INTO scrape_runs (
			id, started_at, finished_at, status, dry_run, scraped,
			exact_duplicates, fuzzy_duplicates, known_skipped, unique_count, added, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			scraped = excluded.scraped,
			exact_duplicates = excluded.exact_duplicates,
			fuzzy_duplicates = excluded.fuzzy_duplicates,
			known_skipped = excluded.known_skipped,
			unique_count = excluded.unique_count,
			added = excluded.added,
			error = excluded.error
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		formatRunTime(run.StartedAt),
		finishedAt,
		string(run.Status),
		run.DryRun,
		string(scraped),
		run.ExactDuplicates,
		run.FuzzyDuplicates,
		run.KnownSkipped,
		run.Unique,
		run.Added,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record scrape run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*types.ScrapeRun, error) {
	query := `
		SELECT id, started_at, finished_at, status, dry_run, scraped,
		       exact_duplicates, fuzzy_duplicates, known_skipped, unique_count, added, error
		FROM scrape_runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.ScrapeRun
	for rows.Next() {
		var (
			run        types.ScrapeRun
			startedAt  string
			finishedAt sql.NullString
			status     string
			scraped    string
		)
		err := rows.Scan(
			&run.ID,
			&startedAt,
			&finishedAt,
			&status,
			&run.DryRun,
			&scraped,
			&run.ExactDuplicates,
			&run.FuzzyDuplicates,
			&run.KnownSkipped,
			&run.Unique,
			&run.Added,
			&run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrape run: %w", err)
		}

		run.Status = types.RunStatus(status)
		if run.StartedAt, err = time.Parse(runTimeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("invalid started_at for run %s: %w", run.ID, err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(runTimeLayout, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("invalid finished_at for run %s: %w", run.ID, err)
			}
			run.FinishedAt = &t
		}
		if err := json.Unmarshal([]byte(scraped), &run.Scraped); err != nil {
			return nil, fmt.Errorf("invalid scrape counts for run %s: %w", run.ID, err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scrape runs: %w", err)
	}
	return runs, nil
}

// CleanupRuns deletes finished runs older than the retention period, always
// keeping the cfg.Keep most recent runs. Returns the number deleted.
func (s *Store) CleanupRuns(ctx context.Context, cfg config.RunHistoryConfig) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("invalid run history config: %w", err)
	}
	if !cfg.Enabled() {
		return 0, nil
	}

	cutoff := formatRunTime(time.Now().Add(-cfg.MaxAge()))
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM scrape_runs
		WHERE status != 'running'
		  AND started_at < ?
		  AND id NOT IN (
		      SELECT id FROM scrape_runs
		      ORDER BY started_at DESC
		      LIMIT ?
		  )
	`, cutoff, cfg.Keep)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup scrape runs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("deleted old scrape runs", "count", n, "retention_days", cfg.RetentionDays, "keep", cfg.Keep)
	}
	return int(n), nil
}
