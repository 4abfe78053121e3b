package types

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Date and timestamp layouts used by every serialized form of an alert
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
)

// ErrMissingIssueDate is returned when an alert is constructed without an issue date.
// A zero date would silently produce a hash for 0001-01-01, so construction refuses it.
var ErrMissingIssueDate = errors.New("issue date is required")

// ErrInvalidIssueDate is returned when a stored issue date cannot be parsed
var ErrInvalidIssueDate = errors.New("invalid issue date")

// Source identifies the site an alert was collected from
type Source string

const (
	SourceCAS   Source = "CAS"
	SourceGOVUK Source = "GOVUK"
)

// IsKnown reports whether the source is one of the sites this tool scrapes.
// The set is open: stored rows may carry other tags and are still valid alerts.
func (s Source) IsKnown() bool {
	switch s {
	case SourceCAS, SourceGOVUK:
		return true
	}
	return false
}

// ParseSource maps a user-supplied name (case-insensitive) to a Source
func ParseSource(name string) (Source, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CAS", "CAS_MHRA", "MHRA":
		return SourceCAS, nil
	case "GOVUK", "GOV.UK", "GOV_UK":
		return SourceGOVUK, nil
	}
	return "", fmt.Errorf("unknown source: %q", name)
}

// Alert is one regulatory safety alert as observed on a source site
type Alert struct {
	Reference  string    `json:"reference"`
	Title      string    `json:"title"`
	Originator string    `json:"originator"`
	IssueDate  time.Time `json:"issue_date"`
	Status     string    `json:"status"`
	AlertType  string    `json:"alert_type"`
	Source     Source    `json:"source"`
	URL        string    `json:"url"`

	// Enrichment fields, filled from the alert's detail page when available
	MedicalSpecialty       string `json:"medical_specialty,omitempty"`
	ActionCategory         string `json:"action_category,omitempty"`
	BroadcastContent       string `json:"broadcast_content,omitempty"`
	AdditionalInfo         string `json:"additional_info,omitempty"`
	ActionUnderwayDeadline string `json:"action_underway_deadline,omitempty"`
	ActionCompleteDeadline string `json:"action_complete_deadline,omitempty"`
	Attachments            string `json:"attachments,omitempty"`

	ScrapedAt time.Time `json:"scraped_at"`
	HashID    string    `json:"hash_id"`
}

// NewAlert builds a validated alert from the supplied fields. ScrapedAt defaults to
// now and HashID is derived from the identity fields when the caller leaves it empty.
// The input value is copied; the returned alert should not be mutated afterwards.
func NewAlert(fields Alert) (*Alert, error) {
	a := fields
	if a.IssueDate.IsZero() {
		return nil, fmt.Errorf("failed to create alert %q: %w", a.Title, ErrMissingIssueDate)
	}
	if a.ScrapedAt.IsZero() {
		a.ScrapedAt = time.Now()
	}
	if a.HashID == "" {
		a.HashID = a.ComputeHash()
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return &a, nil
}

// ComputeHash returns the identity fingerprint of an alert: the MD5 hex digest of
// reference, title, originator and issue day joined with "|".
func ComputeHash(reference, title, originator string, issueDate time.Time) string {
	key := strings.Join([]string{reference, title, originator, issueDate.Format(DateLayout)}, "|")
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ComputeHash derives the identity hash from the alert's current fields
func (a *Alert) ComputeHash() string {
	return ComputeHash(a.Reference, a.Title, a.Originator, a.IssueDate)
}

// Validate checks if the alert has valid field values. Source may be empty:
// rows written by hand or by older versions are still part of the store.
func (a *Alert) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if a.IssueDate.IsZero() {
		return ErrMissingIssueDate
	}
	if a.HashID == "" {
		return fmt.Errorf("hash_id is required")
	}
	return nil
}

// SameDay reports whether both alerts were issued on the same calendar day
func (a *Alert) SameDay(other *Alert) bool {
	y1, m1, d1 := a.IssueDate.Date()
	y2, m2, d2 := other.IssueDate.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (a *Alert) String() string {
	ref := a.Reference
	if ref == "" {
		ref = "-"
	}
	return fmt.Sprintf("[%s %s] %s (%s)", a.Source, ref, a.Title, a.IssueDate.Format(DateLayout))
}
