package deduplication

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/casalert/internal/types"
)

// Removal records one alert dropped from a batch
type Removal struct {
	// Index is the position of the removed alert in the input batch
	Index int `json:"index"`

	// KeptIndex is the position of the earlier alert it duplicates
	KeptIndex int `json:"kept_index"`

	// Rule is the rule that matched (reference or hash in the exact phase)
	Rule Rule `json:"rule"`

	// Score is the title similarity for fuzzy removals, -1 otherwise
	Score int `json:"score"`

	// Fuzzy is true when the alert was removed by the pairwise phase
	Fuzzy bool `json:"fuzzy"`
}

// Result represents the outcome of deduplicating one batch
type Result struct {
	// Unique holds the surviving alerts in first-occurrence order
	Unique []*types.Alert `json:"unique"`

	// Removed lists every dropped alert, ordered by Index
	Removed []Removal `json:"removed"`

	Stats Stats `json:"stats"`
}

// Stats provides metrics about a deduplication pass
type Stats struct {
	// TotalInput is the number of alerts in the batch
	TotalInput int `json:"total_input"`

	// UniqueCount is the number of alerts kept
	UniqueCount int `json:"unique_count"`

	// ExactDuplicateCount is the number removed by the reference/hash pass
	ExactDuplicateCount int `json:"exact_duplicate_count"`

	// FuzzyDuplicateCount is the number removed by the pairwise pass
	FuzzyDuplicateCount int `json:"fuzzy_duplicate_count"`

	// ComparisonsMade is the number of pairwise detector calls
	ComparisonsMade int `json:"comparisons_made"`

	// ProcessingTimeMs is the time taken in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// Validate checks if the result is internally consistent
func (r *Result) Validate() error {
	if r.Stats.UniqueCount != len(r.Unique) {
		return fmt.Errorf("stats.unique_count (%d) does not match unique length (%d)",
			r.Stats.UniqueCount, len(r.Unique))
	}
	removed := r.Stats.ExactDuplicateCount + r.Stats.FuzzyDuplicateCount
	if removed != len(r.Removed) {
		return fmt.Errorf("stats duplicate counts (%d) do not match removed length (%d)",
			removed, len(r.Removed))
	}
	if r.Stats.TotalInput != len(r.Unique)+len(r.Removed) {
		return fmt.Errorf("stats.total_input (%d) does not match unique + removed (%d)",
			r.Stats.TotalInput, len(r.Unique)+len(r.Removed))
	}
	for _, rm := range r.Removed {
		if rm.Index < 0 || rm.Index >= r.Stats.TotalInput {
			return fmt.Errorf("removed contains invalid index %d (total: %d)", rm.Index, r.Stats.TotalInput)
		}
		if rm.KeptIndex < 0 || rm.KeptIndex >= rm.Index {
			return fmt.Errorf("removed index %d must follow kept index %d", rm.Index, rm.KeptIndex)
		}
	}
	return nil
}

// Deduplicator reduces a batch of alerts to one alert per real-world alert
type Deduplicator struct {
	detector *Detector
	logger   *slog.Logger
}

// NewDeduplicator creates a deduplicator. A nil logger discards output.
func NewDeduplicator(cfg Config, logger *slog.Logger) (*Deduplicator, error) {
	detector, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deduplicator{
		detector: detector,
		logger:   logger.With("component", "dedup"),
	}, nil
}

// Detector returns the pairwise detector used by the deduplicator
func (d *Deduplicator) Detector() *Detector {
	return d.detector
}

// RemoveDuplicates drops repeated alerts from the batch in two passes. The first
// drops alerts whose reference or hash was already seen on a kept alert. The
// second compares the survivors pairwise; each kept alert suppresses every later
// alert it matches. The earliest alert always wins and input order is preserved.
func (d *Deduplicator) RemoveDuplicates(alerts []*types.Alert) *Result {
	start := time.Now()
	result := &Result{
		Unique:  []*types.Alert{},
		Removed: []Removal{},
	}
	result.Stats.TotalInput = len(alerts)

	// Phase 1: exact reference/hash filter
	seenRefs := make(map[string]int)
	seenHashes := make(map[string]int)
	survivors := make([]int, 0, len(alerts))
	removedAt := make(map[int]Removal)

	for i, a := range alerts {
		if a.Reference != "" {
			if kept, ok := seenRefs[a.Reference]; ok {
				removedAt[i] = Removal{Index: i, KeptIndex: kept, Rule: RuleReference, Score: -1}
				result.Stats.ExactDuplicateCount++
				continue
			}
		}
		if a.HashID != "" {
			if kept, ok := seenHashes[a.HashID]; ok {
				removedAt[i] = Removal{Index: i, KeptIndex: kept, Rule: RuleHash, Score: -1}
				result.Stats.ExactDuplicateCount++
				continue
			}
		}
		if a.Reference != "" {
			seenRefs[a.Reference] = i
		}
		if a.HashID != "" {
			seenHashes[a.HashID] = i
		}
		survivors = append(survivors, i)
	}

	// Phase 2: pairwise chain marking over the survivors
	marked := make([]bool, len(survivors))
	for si, i := range survivors {
		if marked[si] {
			continue
		}
		for sj := si + 1; sj < len(survivors); sj++ {
			if marked[sj] {
				continue
			}
			j := survivors[sj]
			result.Stats.ComparisonsMade++
			match := d.detector.Compare(alerts[i], alerts[j])
			if !match.IsDuplicate() {
				continue
			}
			marked[sj] = true
			removedAt[j] = Removal{Index: j, KeptIndex: i, Rule: match.Rule, Score: match.Score, Fuzzy: true}
			result.Stats.FuzzyDuplicateCount++
			d.logger.Debug("duplicate alert removed",
				"kept", alerts[i].String(), "removed", alerts[j].String(), "match", match.String())
		}
		result.Unique = append(result.Unique, alerts[i])
	}

	for i := range alerts {
		if rm, ok := removedAt[i]; ok {
			result.Removed = append(result.Removed, rm)
		}
	}

	result.Stats.UniqueCount = len(result.Unique)
	result.Stats.ProcessingTimeMs = time.Since(start).Milliseconds()

	d.logger.Info("deduplicated batch",
		"input", result.Stats.TotalInput,
		"unique", result.Stats.UniqueCount,
		"exact_duplicates", result.Stats.ExactDuplicateCount,
		"fuzzy_duplicates", result.Stats.FuzzyDuplicateCount,
		"comparisons", result.Stats.ComparisonsMade)

	return result
}

// RemoveDuplicates deduplicates alerts with the given configuration and returns the survivors
func RemoveDuplicates(cfg Config, alerts []*types.Alert) ([]*types.Alert, error) {
	dedup, err := NewDeduplicator(cfg, nil)
	if err != nil {
		return nil, err
	}
	return dedup.RemoveDuplicates(alerts).Unique, nil
}
