package deduplication

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/casalert/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// mkAlert builds a valid alert with a computed hash
func mkAlert(t *testing.T, ref, title string, source types.Source, issued time.Time) *types.Alert {
	t.Helper()
	a, err := types.NewAlert(types.Alert{
		Reference:  ref,
		Title:      title,
		Originator: "MHRA",
		IssueDate:  issued,
		Status:     "Issued",
		Source:     source,
	})
	require.NoError(t, err)
	return a
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)
	return d
}

func TestNewDetectorRejectsInvalidConfig(t *testing.T) {
	_, err := NewDetector(Config{DuplicateThreshold: 1.5})
	assert.Error(t, err)
}

func TestDetectorReferencePrecedence(t *testing.T) {
	d := newTestDetector(t)
	a := mkAlert(t, "NatPSA/2025/001", "Recall of infusion sets", types.SourceCAS, date(2025, time.January, 1))
	b := mkAlert(t, "NatPSA/2025/001", "Completely unrelated wording about ventilators", types.SourceGOVUK, date(2024, time.March, 9))

	match := d.Compare(a, b)
	assert.Equal(t, RuleReference, match.Rule)
	assert.True(t, d.IsDuplicate(a, b))
	assert.True(t, d.IsDuplicate(b, a))
}

func TestDetectorEmptyReferencesNeverMatchByReference(t *testing.T) {
	d := newTestDetector(t)
	a := mkAlert(t, "", "Ventilator software update", types.SourceGOVUK, date(2025, time.January, 1))
	b := mkAlert(t, "", "Blood glucose meter recall", types.SourceGOVUK, date(2025, time.January, 1))

	assert.False(t, d.IsDuplicate(a, b))
}

func TestDetectorFuzzyThresholdBoundary(t *testing.T) {
	d := newTestDetector(t)
	issued := date(2025, time.April, 2)

	tests := []struct {
		name      string
		titleA    string
		titleB    string
		score     int
		duplicate bool
	}{
		{
			name:      "score 85 is a duplicate",
			titleA:    strings.Repeat("a", 20),
			titleB:    strings.Repeat("a", 17) + "bbb",
			score:     85,
			duplicate: true,
		},
		{
			name:      "score 84 is not",
			titleA:    strings.Repeat("a", 25),
			titleB:    strings.Repeat("a", 21) + "bbbb",
			score:     84,
			duplicate: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mkAlert(t, "", tt.titleA, types.SourceGOVUK, issued)
			b := mkAlert(t, "", tt.titleB, types.SourceGOVUK, issued)

			match := d.Compare(a, b)
			assert.Equal(t, tt.score, match.Score)
			assert.Equal(t, tt.duplicate, match.IsDuplicate())
			assert.Equal(t, tt.duplicate, d.IsDuplicate(b, a))
		})
	}
}

func TestDetectorFuzzyRequiresSameSourceAndDay(t *testing.T) {
	d := newTestDetector(t)
	base := mkAlert(t, "", "Insulin pump battery fault", types.SourceGOVUK, date(2025, time.May, 1))

	tests := []struct {
		name  string
		other *types.Alert
		want  bool
	}{
		{"same source and day", mkAlert(t, "", "Insulin pump battery faults", types.SourceGOVUK, date(2025, time.May, 1)), true},
		{"different source", mkAlert(t, "", "Insulin pump battery faults", types.SourceCAS, date(2025, time.May, 1)), false},
		{"different day", mkAlert(t, "", "Insulin pump battery faults", types.SourceGOVUK, date(2025, time.May, 2)), false},
		{"case differs only", mkAlert(t, "", "INSULIN PUMP BATTERY FAULT", types.SourceGOVUK, date(2025, time.May, 1)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsDuplicate(base, tt.other))
		})
	}
}

func TestDetectorSameDayIgnoresTimeOfDay(t *testing.T) {
	d := newTestDetector(t)
	a := mkAlert(t, "", "Defibrillator pad recall", types.SourceCAS, time.Date(2025, time.May, 1, 8, 0, 0, 0, time.UTC))
	b := mkAlert(t, "", "Defibrillator pads recall", types.SourceCAS, time.Date(2025, time.May, 1, 18, 30, 0, 0, time.UTC))

	assert.Equal(t, RuleFuzzyTitle, d.Compare(a, b).Rule)
}

func TestDetectorHashFallback(t *testing.T) {
	d := newTestDetector(t)
	// Same hash but different sources: the fuzzy rule cannot fire, the hash rule does
	a := mkAlert(t, "", "Syringe driver alarm", types.SourceCAS, date(2025, time.June, 3))
	b := &types.Alert{
		Title:     "Entirely different headline text",
		Source:    types.SourceGOVUK,
		IssueDate: date(2025, time.June, 3),
		HashID:    a.HashID,
	}

	match := d.Compare(a, b)
	assert.Equal(t, RuleHash, match.Rule)
}

func TestDetectorCustomThreshold(t *testing.T) {
	d, err := NewDetector(Config{DuplicateThreshold: 0.5})
	require.NoError(t, err)

	a := mkAlert(t, "", "abcd", types.SourceCAS, date(2025, time.June, 3))
	b := mkAlert(t, "", "abxy", types.SourceCAS, date(2025, time.June, 3))
	assert.True(t, d.IsDuplicate(a, b)) // ratio 50

	strict, err := NewDetector(Config{DuplicateThreshold: 1.0})
	require.NoError(t, err)
	assert.False(t, strict.IsDuplicate(a, b))
}

func TestMatchString(t *testing.T) {
	assert.Equal(t, "distinct", Match{Score: 12}.String())
	assert.Equal(t, "reference", Match{Rule: RuleReference, Score: -1}.String())
	assert.Equal(t, "fuzzy_title (score 91)", Match{Rule: RuleFuzzyTitle, Score: 91}.String())
}
