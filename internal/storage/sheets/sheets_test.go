package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

const fakeSheetID = 7

// fakeSheets implements the handful of endpoints the store uses, over a
// single in-memory worksheet.
type fakeSheets struct {
	mu          sync.Mutex
	rows        [][]string
	t           *testing.T
	failBatch   bool
	batchCalls  int
	valueWrites int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	switch {
	case r.Method == http.MethodGet && path == "sheet-123":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"spreadsheetId": "sheet-123",
			"sheets": []any{
				map[string]any{"properties": map[string]any{"sheetId": 3, "title": "Other"}},
				map[string]any{"properties": map[string]any{"sheetId": fakeSheetID, "title": "Alerts"}},
			},
		})
		return
	case r.Method == http.MethodPost && path == "sheet-123:batchUpdate":
		f.batchUpdate(w, r)
		return
	}

	parts := strings.SplitN(path, "/values/", 2)
	if len(parts) != 2 || parts[0] != "sheet-123" {
		http.NotFound(w, r)
		return
	}
	rng := parts[1]

	decode := func() [][]string {
		var body struct {
			Values [][]string `json:"values"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		return body.Values
	}
	copyRow := func(row []string) []string { return append([]string(nil), row...) }

	switch {
	case r.Method == http.MethodGet:
		rows := f.rows
		if strings.HasSuffix(rng, "!1:1") && len(rows) > 1 {
			rows = rows[:1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "majorDimension": "ROWS", "values": rows})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		f.valueWrites++
		assert.Equal(f.t, "RAW", r.URL.Query().Get("valueInputOption"))
		assert.Equal(f.t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))
		for _, row := range decode() {
			f.rows = append(f.rows, copyRow(row))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-123"})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		f.valueWrites++
		f.rows = nil
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-123", "clearedRange": rng})
	case r.Method == http.MethodPut:
		f.valueWrites++
		assert.Equal(f.t, "RAW", r.URL.Query().Get("valueInputOption"))
		for i, row := range decode() {
			if i < len(f.rows) {
				f.rows[i] = copyRow(row)
			} else {
				f.rows = append(f.rows, copyRow(row))
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-123"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// batchUpdate applies deleteDimension requests in order, the way the API does
func (f *fakeSheets) batchUpdate(w http.ResponseWriter, r *http.Request) {
	f.batchCalls++
	if f.failBatch {
		http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, http.StatusInternalServerError)
		return
	}
	var body struct {
		Requests []struct {
			DeleteDimension *struct {
				Range struct {
					SheetID    int64  `json:"sheetId"`
					Dimension  string `json:"dimension"`
					StartIndex int64  `json:"startIndex"`
					EndIndex   int64  `json:"endIndex"`
				} `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	for _, req := range body.Requests {
		require.NotNil(f.t, req.DeleteDimension)
		rng := req.DeleteDimension.Range
		assert.Equal(f.t, int64(fakeSheetID), rng.SheetID)
		assert.Equal(f.t, "ROWS", rng.Dimension)
		require.True(f.t, rng.StartIndex < rng.EndIndex && rng.EndIndex <= int64(len(f.rows)))
		f.rows = append(f.rows[:rng.StartIndex], f.rows[rng.EndIndex:]...)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-123"})
}

func setupTestSheet(t *testing.T, rows ...[]string) (*Store, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{rows: rows, t: t}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := New(context.Background(), config.SheetsConfig{
		SpreadsheetID: "sheet-123",
		Worksheet:     "Alerts",
		Endpoint:      srv.URL + "/",
	}, nil)
	require.NoError(t, err)
	return store, fake
}

func newAlert(t *testing.T, ref, title, date string) *types.Alert {
	t.Helper()
	d, err := time.Parse(types.DateLayout, date)
	require.NoError(t, err)
	alert, err := types.NewAlert(types.Alert{
		Reference:  ref,
		Title:      title,
		Originator: "MHRA",
		IssueDate:  d,
		Status:     "Active",
		Source:     types.SourceCAS,
		ScrapedAt:  time.Date(2025, 1, 20, 8, 0, 0, 0, time.Local),
	})
	require.NoError(t, err)
	return alert
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), config.SheetsConfig{}, nil)
	assert.Error(t, err)
}

func TestEmptySheetGetsHeader(t *testing.T) {
	store, fake := setupTestSheet(t)

	alerts, err := store.GetExistingAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
	require.Len(t, fake.rows, 1)
	assert.Equal(t, types.Header(), fake.rows[0])
}

func TestAppendAndRead(t *testing.T) {
	store, fake := setupTestSheet(t)
	ctx := context.Background()

	a := newAlert(t, "A1", "Pump recall", "2025-01-01")
	a.BroadcastContent = "multi\nline"
	b := newAlert(t, "B1", "Vaccine update", "2025-01-02")
	require.NoError(t, store.Append(ctx, []*types.Alert{a, b}))

	require.Len(t, fake.rows, 3)
	assert.Equal(t, types.Header(), fake.rows[0])
	assert.Equal(t, a.ToRow(), fake.rows[1])

	alerts, err := store.GetExistingAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, a.HashID, alerts[0].HashID)
	assert.Equal(t, "multi\nline", alerts[0].BroadcastContent)
	assert.Equal(t, "B1", alerts[1].Reference)
}

func TestLegacyHeaderIsExtended(t *testing.T) {
	legacy := newAlert(t, "OLD1", "Legacy row", "2024-12-01")
	store, fake := setupTestSheet(t, types.BaseHeader, legacy.ToRow()[:len(types.BaseHeader)])
	ctx := context.Background()

	alerts, err := store.GetExistingAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, legacy.HashID, alerts[0].HashID)

	require.NoError(t, store.Append(ctx, []*types.Alert{newAlert(t, "NEW1", "New row", "2025-01-01")}))
	assert.Equal(t, types.Header(), fake.rows[0])
	assert.Len(t, fake.rows, 3)
}

func TestMismatchedHeaderRejected(t *testing.T) {
	store, _ := setupTestSheet(t, []string{"Something", "Else"})

	err := store.Append(context.Background(), []*types.Alert{newAlert(t, "A1", "Pump recall", "2025-01-01")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header does not match")
}

func TestUnreadableRowsSkipped(t *testing.T) {
	good := newAlert(t, "A1", "Pump recall", "2025-01-01")
	bad := good.ToRow()
	bad[3] = "not a date"
	store, _ := setupTestSheet(t, types.Header(), bad, []string{"", ""}, good.ToRow())

	alerts, err := store.GetExistingAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "A1", alerts[0].Reference)
}

func TestPruneDuplicateHashes(t *testing.T) {
	a := newAlert(t, "A1", "Pump recall", "2025-01-01")
	b := newAlert(t, "B1", "Vaccine update", "2025-01-02")
	aLater := a.ToRow()
	aLater[4] = "Closed"
	noHash := b.ToRow()
	noHash[10] = ""

	store, fake := setupTestSheet(t, types.Header(), a.ToRow(), b.ToRow(), aLater, b.ToRow(), noHash)

	removed, err := store.PruneDuplicateHashes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	require.Len(t, fake.rows, 4)
	assert.Equal(t, a.ToRow(), fake.rows[1], "first copy survives")
	assert.Equal(t, b.ToRow(), fake.rows[2])
	assert.Equal(t, noHash, fake.rows[3])

	removed, err = store.PruneDuplicateHashes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPruneDuplicateHashesFailureKeepsRows(t *testing.T) {
	a := newAlert(t, "A1", "Pump recall", "2025-01-01")
	b := newAlert(t, "B1", "Vaccine update", "2025-01-02")
	rows := [][]string{types.Header(), a.ToRow(), b.ToRow(), a.ToRow()}

	want := slices.Clone(rows)
	store, fake := setupTestSheet(t, rows...)
	fake.failBatch = true

	removed, err := store.PruneDuplicateHashes(context.Background())
	require.Error(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, 1, fake.batchCalls)
	assert.Zero(t, fake.valueWrites, "rows are only removed through the batch update")
	assert.Equal(t, want, fake.rows)
}

func TestPruneDuplicateHashesSingleBatch(t *testing.T) {
	a := newAlert(t, "A1", "Pump recall", "2025-01-01")
	b := newAlert(t, "B1", "Vaccine update", "2025-01-02")
	c := newAlert(t, "C1", "Cable fault", "2025-01-03")

	store, fake := setupTestSheet(t, types.Header(), a.ToRow(), a.ToRow(), b.ToRow(), a.ToRow(), c.ToRow(), b.ToRow())

	removed, err := store.PruneDuplicateHashes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, fake.batchCalls)
	assert.Equal(t, [][]string{types.Header(), a.ToRow(), b.ToRow(), c.ToRow()}, fake.rows)
}

func TestAppendFollowsSheetColumnOrder(t *testing.T) {
	header := types.Header()
	refIdx, titleIdx := slices.Index(header, types.ColReference), slices.Index(header, types.ColTitle)
	require.GreaterOrEqual(t, refIdx, 0)
	require.GreaterOrEqual(t, titleIdx, 0)
	header[refIdx], header[titleIdx] = header[titleIdx], header[refIdx]
	header = append(header, "Notes")

	store, fake := setupTestSheet(t, header)
	ctx := context.Background()

	a := newAlert(t, "A1", "Pump recall", "2025-01-01")
	require.NoError(t, store.Append(ctx, []*types.Alert{a}))

	require.Len(t, fake.rows, 2)
	assert.Equal(t, header, fake.rows[0], "existing header is left alone")
	row := fake.rows[1]
	require.Len(t, row, len(header))
	assert.Equal(t, "A1", row[titleIdx])
	assert.Equal(t, "Pump recall", row[refIdx])
	assert.Empty(t, row[len(header)-1])

	alerts, err := store.GetExistingAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "A1", alerts[0].Reference)
	assert.Equal(t, "Pump recall", alerts[0].Title)
	assert.Equal(t, a.HashID, alerts[0].HashID)
}

func TestHeaderMissingColumnRejected(t *testing.T) {
	header := slices.DeleteFunc(types.Header(), func(col string) bool { return col == types.ColStatus })
	header = append(header, "Notes")
	store, _ := setupTestSheet(t, header)

	err := store.Append(context.Background(), []*types.Alert{newAlert(t, "A1", "Pump recall", "2025-01-01")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header does not match")
}
