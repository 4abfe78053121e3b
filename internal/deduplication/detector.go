package deduplication

import (
	"fmt"
	"strings"

	"github.com/steveyegge/casalert/internal/types"
)

// Rule names the detector rule that matched a pair of alerts
type Rule string

const (
	RuleNone       Rule = ""
	RuleReference  Rule = "reference"
	RuleFuzzyTitle Rule = "fuzzy_title"
	RuleHash       Rule = "hash"
)

// Match is the outcome of comparing two alerts
type Match struct {
	// Rule is the first rule that held, or RuleNone
	Rule Rule `json:"rule,omitempty"`

	// Score is the title similarity (0-100), or -1 when the titles were not compared
	Score int `json:"score"`
}

// IsDuplicate reports whether any rule matched
func (m Match) IsDuplicate() bool {
	return m.Rule != RuleNone
}

func (m Match) String() string {
	if !m.IsDuplicate() {
		return "distinct"
	}
	if m.Rule == RuleFuzzyTitle {
		return fmt.Sprintf("%s (score %d)", m.Rule, m.Score)
	}
	return string(m.Rule)
}

// Detector judges whether two alerts describe the same real-world alert
type Detector struct {
	config   Config
	minScore int
}

// NewDetector creates a detector with the given configuration
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Detector{config: cfg, minScore: cfg.MinScore()}, nil
}

// Config returns the detector's configuration
func (d *Detector) Config() Config {
	return d.config
}

// IsDuplicate reports whether a and b refer to the same alert.
// Callers should treat it as symmetric.
func (d *Detector) IsDuplicate(a, b *types.Alert) bool {
	return d.Compare(a, b).IsDuplicate()
}

// Compare applies the rules in precedence order and reports the first that holds
func (d *Detector) Compare(a, b *types.Alert) Match {
	if a.Reference != "" && a.Reference == b.Reference {
		return Match{Rule: RuleReference, Score: -1}
	}

	score := -1
	if a.Source == b.Source && a.SameDay(b) {
		score = Ratio(strings.ToLower(a.Title), strings.ToLower(b.Title))
		if score >= d.minScore {
			return Match{Rule: RuleFuzzyTitle, Score: score}
		}
	}

	if a.HashID != "" && a.HashID == b.HashID {
		return Match{Rule: RuleHash, Score: score}
	}
	return Match{Rule: RuleNone, Score: score}
}
