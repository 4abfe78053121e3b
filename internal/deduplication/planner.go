package deduplication

import (
	"log/slog"

	"github.com/steveyegge/casalert/internal/types"
)

// Plan is the set of candidates that should be appended to the store
type Plan struct {
	// ToAdd holds accepted candidates in input order
	ToAdd []*types.Alert `json:"to_add"`

	// SkippedByHash holds candidates whose hash was already known
	SkippedByHash []*types.Alert `json:"skipped_by_hash"`

	// SkippedByReference holds candidates whose reference was already known
	SkippedByReference []*types.Alert `json:"skipped_by_reference"`
}

// Skipped returns the number of candidates that were not accepted
func (p *Plan) Skipped() int {
	return len(p.SkippedByHash) + len(p.SkippedByReference)
}

// Planner filters candidates against alerts already persisted
type Planner struct {
	logger *slog.Logger
}

// NewPlanner creates a planner. A nil logger discards output.
func NewPlanner(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{logger: logger.With("component", "planner")}
}

// PlanAdditions returns the candidates that are not yet recorded in known.
// Only exact identity is used: a candidate is skipped when its hash or reference
// matches a known alert or an earlier accepted candidate. known is not modified.
func (p *Planner) PlanAdditions(known, candidates []*types.Alert) *Plan {
	knownHashes := make(map[string]struct{}, len(known))
	knownRefs := make(map[string]struct{}, len(known))
	for _, a := range known {
		if a.HashID != "" {
			knownHashes[a.HashID] = struct{}{}
		}
		if a.Reference != "" {
			knownRefs[a.Reference] = struct{}{}
		}
	}

	plan := &Plan{
		ToAdd:              []*types.Alert{},
		SkippedByHash:      []*types.Alert{},
		SkippedByReference: []*types.Alert{},
	}
	for _, a := range candidates {
		if a.HashID != "" {
			if _, ok := knownHashes[a.HashID]; ok {
				plan.SkippedByHash = append(plan.SkippedByHash, a)
				p.logger.Debug("alert already recorded", "alert", a.String(), "by", "hash")
				continue
			}
		}
		if a.Reference != "" {
			if _, ok := knownRefs[a.Reference]; ok {
				plan.SkippedByReference = append(plan.SkippedByReference, a)
				p.logger.Debug("alert already recorded", "alert", a.String(), "by", "reference")
				continue
			}
		}

		plan.ToAdd = append(plan.ToAdd, a)
		if a.HashID != "" {
			knownHashes[a.HashID] = struct{}{}
		}
		if a.Reference != "" {
			knownRefs[a.Reference] = struct{}{}
		}
	}

	p.logger.Info("planned additions",
		"known", len(known),
		"candidates", len(candidates),
		"new", len(plan.ToAdd),
		"skipped", plan.Skipped())

	return plan
}

// PlanAdditions returns the candidates not yet present in known
func PlanAdditions(known, candidates []*types.Alert) []*types.Alert {
	return NewPlanner(nil).PlanAdditions(known, candidates).ToAdd
}
