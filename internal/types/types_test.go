package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeHashKnownValue(t *testing.T) {
	// md5("X1|Device recall|MHRA|2025-01-01")
	got := ComputeHash("X1", "Device recall", "MHRA", day(2025, time.January, 1))
	assert.Equal(t, "cdf0118f90b3ddc6a3c599d68002c546", got)

	// Time of day does not affect identity
	later := time.Date(2025, time.January, 1, 17, 45, 3, 0, time.UTC)
	assert.Equal(t, got, ComputeHash("X1", "Device recall", "MHRA", later))
}

func TestComputeHashFieldSensitivity(t *testing.T) {
	base := ComputeHash("X1", "Device recall", "MHRA", day(2025, time.January, 1))

	tests := []struct {
		name       string
		reference  string
		title      string
		originator string
		date       time.Time
	}{
		{"reference", "X2", "Device recall", "MHRA", day(2025, time.January, 1)},
		{"title", "X1", "Device recall!", "MHRA", day(2025, time.January, 1)},
		{"originator", "X1", "Device recall", "DHSC", day(2025, time.January, 1)},
		{"date", "X1", "Device recall", "MHRA", day(2025, time.January, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, ComputeHash(tt.reference, tt.title, tt.originator, tt.date))
		})
	}
}

func TestNewAlertDeterministicHash(t *testing.T) {
	fields := Alert{
		Reference:  "NatPSA/2025/001",
		Title:      "Recall of infusion sets",
		Originator: "NHS England",
		IssueDate:  day(2025, time.March, 14),
		Source:     SourceCAS,
	}

	a, err := NewAlert(fields)
	require.NoError(t, err)
	b, err := NewAlert(fields)
	require.NoError(t, err)

	assert.Equal(t, a.HashID, b.HashID)
	assert.Equal(t, ComputeHash(fields.Reference, fields.Title, fields.Originator, fields.IssueDate), a.HashID)
	assert.False(t, a.ScrapedAt.IsZero(), "ScrapedAt should default to now")
}

func TestNewAlertKeepsSuppliedHash(t *testing.T) {
	a, err := NewAlert(Alert{
		Title:     "Stored alert",
		IssueDate: day(2024, time.June, 1),
		Source:    SourceGOVUK,
		HashID:    "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", a.HashID)
}

func TestNewAlertValidation(t *testing.T) {
	tests := []struct {
		name    string
		fields  Alert
		wantErr error
	}{
		{
			name:    "missing issue date",
			fields:  Alert{Title: "No date", Source: SourceCAS},
			wantErr: ErrMissingIssueDate,
		},
		{
			name:   "missing title",
			fields: Alert{Title: "  ", IssueDate: day(2025, time.January, 1), Source: SourceCAS},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAlert(tt.fields)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewAlertWithoutSource(t *testing.T) {
	a, err := NewAlert(Alert{Title: "No source", IssueDate: day(2025, time.January, 1)})
	require.NoError(t, err)
	assert.Empty(t, a.Source)
	assert.NotEmpty(t, a.HashID)
}

func TestNewAlertDoesNotAliasInput(t *testing.T) {
	fields := Alert{Title: "Original", IssueDate: day(2025, time.January, 1), Source: SourceCAS}
	a, err := NewAlert(fields)
	require.NoError(t, err)

	fields.Title = "Changed"
	assert.Equal(t, "Original", a.Title)
}

func TestSameDay(t *testing.T) {
	a := &Alert{IssueDate: time.Date(2025, time.May, 2, 1, 0, 0, 0, time.UTC)}
	b := &Alert{IssueDate: time.Date(2025, time.May, 2, 23, 59, 0, 0, time.UTC)}
	c := &Alert{IssueDate: time.Date(2025, time.May, 3, 0, 0, 0, 0, time.UTC)}

	assert.True(t, a.SameDay(b))
	assert.True(t, b.SameDay(a))
	assert.False(t, a.SameDay(c))
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		input   string
		want    Source
		wantErr bool
	}{
		{"cas", SourceCAS, false},
		{"CAS_MHRA", SourceCAS, false},
		{"govuk", SourceGOVUK, false},
		{"gov.uk", SourceGOVUK, false},
		{"fda", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSource(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.IsKnown())
		})
	}
}
