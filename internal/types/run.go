package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the outcome of a scrape run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial" // at least one source failed
	RunStatusFailed    RunStatus = "failed"
)

// IsValid checks if the run status value is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusPartial, RunStatusFailed:
		return true
	}
	return false
}

// ScrapeRun records one pass of scrape, dedup, plan and append
type ScrapeRun struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Status     RunStatus      `json:"status"`
	DryRun     bool           `json:"dry_run"`
	Scraped    map[Source]int `json:"scraped"`

	ExactDuplicates int    `json:"exact_duplicates"`
	FuzzyDuplicates int    `json:"fuzzy_duplicates"`
	KnownSkipped    int    `json:"known_skipped"`
	Unique          int    `json:"unique"`
	Added           int    `json:"added"`
	Error           string `json:"error,omitempty"`
}

// NewScrapeRun starts a run with a fresh ID
func NewScrapeRun(startedAt time.Time) *ScrapeRun {
	return &ScrapeRun{
		ID:        uuid.New().String(),
		StartedAt: startedAt,
		Status:    RunStatusRunning,
		Scraped:   make(map[Source]int),
	}
}

// TotalScraped sums the per-source scrape counts
func (r *ScrapeRun) TotalScraped() int {
	total := 0
	for _, n := range r.Scraped {
		total += n
	}
	return total
}

// Finish marks the run complete. A non-nil err overrides status with failed.
func (r *ScrapeRun) Finish(finishedAt time.Time, status RunStatus, err error) {
	r.FinishedAt = &finishedAt
	r.Status = status
	if err != nil {
		r.Status = RunStatusFailed
		r.Error = err.Error()
	}
}

// Duration returns the wall time of a finished run, or zero while running
func (r *ScrapeRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks if the run has valid field values
func (r *ScrapeRun) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if r.FinishedAt != nil && r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("finished_at cannot be before started_at")
	}
	if r.Added < 0 || r.Unique < 0 {
		return fmt.Errorf("counts cannot be negative")
	}
	return nil
}
