// Package sheets stores alerts in a Google Sheets worksheet, one row per alert
// under a fixed header row.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

const valueInputRaw = "RAW"

// Store implements the alert store on a single worksheet
type Store struct {
	svc           *gsheets.Service
	spreadsheetID string
	worksheet     string
	logger        *slog.Logger
}

// New authenticates with the configured service-account credentials and opens
// the worksheet. An Endpoint override skips authentication.
func New(ctx context.Context, cfg config.SheetsConfig, logger *slog.Logger) (*Store, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet_id is required")
	}

	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts,
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(gsheets.SpreadsheetsScope))
	}

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.Worksheet, logger), nil
}

// NewWithService wraps an existing service
func NewWithService(svc *gsheets.Service, spreadsheetID, worksheet string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if worksheet == "" {
		worksheet = "Sheet1"
	}
	return &Store{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		logger:        logger.With("component", "store", "backend", "sheets", "worksheet", worksheet),
	}
}

// a1 qualifies a cell range with the quoted worksheet name
func (s *Store) a1(cells string) string {
	name := "'" + strings.ReplaceAll(s.worksheet, "'", "''") + "'"
	if cells == "" {
		return name
	}
	return name + "!" + cells
}

func (s *Store) readAll(ctx context.Context) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet: %w", err)
	}
	return toStrings(resp.Values), nil
}

func toStrings(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				rows[i][j] = fmt.Sprint(cell)
			}
		}
	}
	return rows
}

func toValues(rows [][]string) [][]interface{} {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}
	return values
}

// GetExistingAlerts reads every data row. Rows that fail to parse are logged
// and skipped. An empty worksheet gets its header row written.
func (s *Store) GetExistingAlerts(ctx context.Context) ([]*types.Alert, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if err := s.writeHeader(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	header := rows[0]
	var alerts []*types.Alert
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		alert, err := types.FromRow(header, row)
		if err != nil {
			// Sheet rows are 1-based and the header occupies row 1
			s.logger.Warn("skipping unreadable row", "row", i+2, "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	s.logger.Info("retrieved existing alerts", "count", len(alerts))
	return alerts, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (s *Store) writeHeader(ctx context.Context) error {
	vr := &gsheets.ValueRange{Values: toValues([][]string{types.Header()})}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.a1("A1"), vr).
		ValueInputOption(valueInputRaw).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	s.logger.Info("wrote header row")
	return nil
}

// ensureHeader writes the header on an empty sheet, widens a legacy base-only
// header to include the enrichment columns, and returns the header new rows
// must follow. Reordered or extra columns are kept; a missing alert column is
// an error.
func (s *Store) ensureHeader(ctx context.Context) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("1:1")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	rows := toStrings(resp.Values)
	full := types.Header()
	if len(rows) == 0 || isBlank(rows[0]) {
		return full, s.writeHeader(ctx)
	}

	current := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		current[i] = strings.TrimSpace(col)
	}
	if len(current) < len(full) && slices.Equal(current, full[:len(current)]) {
		s.logger.Info("extending header row with enrichment columns")
		return full, s.writeHeader(ctx)
	}
	for _, col := range full {
		if !slices.Contains(current, col) {
			return nil, fmt.Errorf("worksheet header does not match the alert columns (missing %q)", col)
		}
	}
	return current, nil
}

// rowFor lays the alert's cells out under header; unknown columns stay empty
func rowFor(alert *types.Alert, header []string) []string {
	m := alert.ToMap()
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = m[col]
	}
	return row
}

// Append adds the alerts as new rows below the existing data, in the column
// order of the worksheet's header
func (s *Store) Append(ctx context.Context, alerts []*types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	header, err := s.ensureHeader(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(alerts))
	for _, alert := range alerts {
		if err := alert.Validate(); err != nil {
			return fmt.Errorf("invalid alert %q: %w", alert.Title, err)
		}
		rows = append(rows, rowFor(alert, header))
	}

	vr := &gsheets.ValueRange{Values: toValues(rows)}
	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.a1("A1"), vr).
		ValueInputOption(valueInputRaw).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}
	s.logger.Info("appended alerts", "count", len(alerts))
	return nil
}

// sheetID looks up the numeric id of the worksheet, needed for structural edits
func (s *Store) sheetID(ctx context.Context) (int64, error) {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read spreadsheet metadata: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.worksheet {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("worksheet %q not found", s.worksheet)
}

// PruneDuplicateHashes deletes every row whose Hash ID already appeared on an
// earlier row. Rows without a Hash ID are kept. All deletions go in a single
// batch update, so a failure leaves the worksheet unchanged.
func (s *Store) PruneDuplicateHashes(ctx context.Context) (int, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return 0, err
	}
	if len(rows) < 2 {
		return 0, nil
	}

	hashCol := slices.IndexFunc(rows[0], func(col string) bool {
		return strings.TrimSpace(col) == types.ColHashID
	})
	if hashCol < 0 {
		return 0, fmt.Errorf("worksheet has no %q column", types.ColHashID)
	}

	// Zero-based sheet row indices; the header is row 0
	var duplicates []int64
	seen := make(map[string]bool)
	for i, row := range rows[1:] {
		hash := ""
		if hashCol < len(row) {
			hash = strings.TrimSpace(row[hashCol])
		}
		if hash == "" {
			continue
		}
		if seen[hash] {
			duplicates = append(duplicates, int64(i+1))
			continue
		}
		seen[hash] = true
	}
	if len(duplicates) == 0 {
		return 0, nil
	}

	id, err := s.sheetID(ctx)
	if err != nil {
		return 0, err
	}
	// Highest index first so earlier deletions do not shift later ones
	requests := make([]*gsheets.Request, 0, len(duplicates))
	for i := len(duplicates) - 1; i >= 0; i-- {
		requests = append(requests, &gsheets.Request{
			DeleteDimension: &gsheets.DeleteDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:         id,
					Dimension:       "ROWS",
					StartIndex:      duplicates[i],
					EndIndex:        duplicates[i] + 1,
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}
	_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicate rows: %w", err)
	}

	s.logger.Info("pruned duplicate rows", "count", len(duplicates))
	return len(duplicates), nil
}

// Close is a no-op; the service holds no connection of its own
func (s *Store) Close() error {
	return nil
}
