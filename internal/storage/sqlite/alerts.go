package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/steveyegge/casalert/internal/types"
)

// GetExistingAlerts returns every stored alert in append order. Rows that no
// longer parse (for example a hand-edited issue date) are logged and skipped.
func (s *Store) GetExistingAlerts(ctx context.Context) ([]*types.Alert, error) {
	query := fmt.Sprintf("SELECT id, %s FROM alerts ORDER BY id", alertColumnList())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*types.Alert
	for rows.Next() {
		var id int64
		cells := make([]sql.NullString, len(alertColumns))
		dest := make([]any, 0, len(cells)+1)
		dest = append(dest, &id)
		for i := range cells {
			dest = append(dest, &cells[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		m := make(map[string]string, len(alertColumns))
		for i, c := range alertColumns {
			m[c.header] = cells[i].String
		}
		alert, err := types.FromMap(m)
		if err != nil {
			s.logger.Warn("skipping unreadable stored alert", "row_id", id, "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// Append inserts the alerts in order within a single transaction
func (s *Store) Append(ctx context.Context, alerts []*types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(alertColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO alerts (%s) VALUES (%s)", alertColumnList(), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, alert := range alerts {
		if err := alert.Validate(); err != nil {
			return fmt.Errorf("invalid alert %q: %w", alert.Title, err)
		}
		m := alert.ToMap()
		args := make([]any, len(alertColumns))
		for i, c := range alertColumns {
			args[i] = m[c.header]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert alert %s: %w", alert.HashID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	s.logger.Info("appended alerts", "count", len(alerts))
	return nil
}

// PruneDuplicateHashes deletes every row whose hash already appears at a lower
// row id, keeping the first-appended copy.
func (s *Store) PruneDuplicateHashes(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM alerts
		WHERE id NOT IN (SELECT MIN(id) FROM alerts GROUP BY hash_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prune duplicate hashes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned duplicate rows", "count", n)
	}
	return int(n), nil
}

// CountAlerts returns the number of stored rows
func (s *Store) CountAlerts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}
