package types

import (
	"fmt"
	"strings"
	"time"
)

// Column names of the tabular store, in order
const (
	ColReference              = "Reference"
	ColTitle                  = "Title"
	ColOriginator             = "Originator"
	ColIssueDate              = "Issue Date"
	ColStatus                 = "Status"
	ColAlertType              = "Alert Type"
	ColSource                 = "Source"
	ColURL                    = "URL"
	ColMedicalSpecialty       = "Medical Specialty"
	ColScrapedAt              = "Scraped At"
	ColHashID                 = "Hash ID"
	ColActionCategory         = "Action Category"
	ColBroadcastContent       = "Broadcast Content"
	ColAdditionalInfo         = "Additional Info"
	ColActionUnderwayDeadline = "Action Underway Deadline"
	ColActionCompleteDeadline = "Action Complete Deadline"
	ColAttachments            = "Attachments"
)

// BaseHeader is the fixed leading header row of the store
var BaseHeader = []string{
	ColReference, ColTitle, ColOriginator, ColIssueDate, ColStatus, ColAlertType,
	ColSource, ColURL, ColMedicalSpecialty, ColScrapedAt, ColHashID,
}

// EnrichmentHeader lists the optional columns written after BaseHeader
var EnrichmentHeader = []string{
	ColActionCategory, ColBroadcastContent, ColAdditionalInfo,
	ColActionUnderwayDeadline, ColActionCompleteDeadline, ColAttachments,
}

// Header returns the full header row (base columns then enrichment columns).
// A fresh slice is returned on every call.
func Header() []string {
	h := make([]string, 0, len(BaseHeader)+len(EnrichmentHeader))
	h = append(h, BaseHeader...)
	return append(h, EnrichmentHeader...)
}

// ToMap flattens the alert into a mapping keyed by header column name
func (a *Alert) ToMap() map[string]string {
	return map[string]string{
		ColReference:              a.Reference,
		ColTitle:                  a.Title,
		ColOriginator:             a.Originator,
		ColIssueDate:              a.IssueDate.Format(DateLayout),
		ColStatus:                 a.Status,
		ColAlertType:              a.AlertType,
		ColSource:                 string(a.Source),
		ColURL:                    a.URL,
		ColMedicalSpecialty:       a.MedicalSpecialty,
		ColScrapedAt:              a.ScrapedAt.Format(TimestampLayout),
		ColHashID:                 a.HashID,
		ColActionCategory:         a.ActionCategory,
		ColBroadcastContent:       a.BroadcastContent,
		ColAdditionalInfo:         a.AdditionalInfo,
		ColActionUnderwayDeadline: a.ActionUnderwayDeadline,
		ColActionCompleteDeadline: a.ActionCompleteDeadline,
		ColAttachments:            a.Attachments,
	}
}

// ToRow returns the alert's cells in Header() order
func (a *Alert) ToRow() []string {
	m := a.ToMap()
	header := Header()
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = m[col]
	}
	return row
}

// FromRow rebuilds an alert from a stored row. Cells are matched to columns by
// header name, so extra or reordered columns are tolerated; missing trailing cells
// read as empty.
func FromRow(header, row []string) (*Alert, error) {
	m := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(row) {
			m[strings.TrimSpace(col)] = row[i]
		}
	}
	return FromMap(m)
}

// FromMap rebuilds an alert from a header-keyed mapping. A stored Hash ID is kept
// as-is; an empty one is recomputed. An empty or unparseable Issue Date is an error.
func FromMap(m map[string]string) (*Alert, error) {
	issueDate, err := parseIssueDate(m[ColIssueDate])
	if err != nil {
		return nil, err
	}

	var scrapedAt time.Time
	if raw := strings.TrimSpace(m[ColScrapedAt]); raw != "" {
		scrapedAt, err = parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", ColScrapedAt, raw, err)
		}
	}

	return NewAlert(Alert{
		Reference:              m[ColReference],
		Title:                  m[ColTitle],
		Originator:             m[ColOriginator],
		IssueDate:              issueDate,
		Status:                 m[ColStatus],
		AlertType:              m[ColAlertType],
		Source:                 Source(m[ColSource]),
		URL:                    m[ColURL],
		MedicalSpecialty:       m[ColMedicalSpecialty],
		ActionCategory:         m[ColActionCategory],
		BroadcastContent:       m[ColBroadcastContent],
		AdditionalInfo:         m[ColAdditionalInfo],
		ActionUnderwayDeadline: m[ColActionUnderwayDeadline],
		ActionCompleteDeadline: m[ColActionCompleteDeadline],
		Attachments:            m[ColAttachments],
		ScrapedAt:              scrapedAt,
		HashID:                 strings.TrimSpace(m[ColHashID]),
	})
}

func parseIssueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrMissingIssueDate
	}
	// Spreadsheet tools sometimes widen dates to full timestamps
	for _, layout := range []string{DateLayout, TimestampLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			y, mo, d := t.Date()
			return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidIssueDate, raw)
}

func parseTimestamp(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range []string{TimestampLayout, time.RFC3339, DateLayout} {
		t, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
