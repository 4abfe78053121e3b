package sqlite

import (
	"strings"

	"github.com/steveyegge/casalert/internal/storage/migrations"
	"github.com/steveyegge/casalert/internal/types"
)

// alertColumns maps each alerts table column to its header column, in header order
var alertColumns = []struct {
	sql    string
	header string
}{
	{"reference", types.ColReference},
	{"title", types.ColTitle},
	{"originator", types.ColOriginator},
	{"issue_date", types.ColIssueDate},
	{"status", types.ColStatus},
	{"alert_type", types.ColAlertType},
	{"source", types.ColSource},
	{"url", types.ColURL},
	{"medical_specialty", types.ColMedicalSpecialty},
	{"scraped_at", types.ColScrapedAt},
	{"hash_id", types.ColHashID},
	{"action_category", types.ColActionCategory},
	{"broadcast_content", types.ColBroadcastContent},
	{"additional_info", types.ColAdditionalInfo},
	{"action_underway_deadline", types.ColActionUnderwayDeadline},
	{"action_complete_deadline", types.ColActionCompleteDeadline},
	{"attachments", types.ColAttachments},
}

func alertColumnList() string {
	names := make([]string, len(alertColumns))
	for i, c := range alertColumns {
		names[i] = c.sql
	}
	return strings.Join(names, ", ")
}

// schema lists the store migrations. Dates are stored as text in the same
// layouts the tabular stores use so rows round-trip through types.FromMap.
var schema = []migrations.Migration{
	{
		Version:     1,
		Description: "create alerts table",
		Up: `
CREATE TABLE alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    reference TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    originator TEXT NOT NULL DEFAULT '',
    issue_date TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT '',
    alert_type TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    medical_specialty TEXT NOT NULL DEFAULT '',
    scraped_at TEXT NOT NULL DEFAULT '',
    hash_id TEXT NOT NULL,
    action_category TEXT NOT NULL DEFAULT '',
    broadcast_content TEXT NOT NULL DEFAULT '',
    additional_info TEXT NOT NULL DEFAULT '',
    action_underway_deadline TEXT NOT NULL DEFAULT '',
    action_complete_deadline TEXT NOT NULL DEFAULT '',
    attachments TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_alerts_hash_id ON alerts(hash_id);
CREATE INDEX idx_alerts_reference ON alerts(reference);
CREATE INDEX idx_alerts_issue_date ON alerts(issue_date);
`,
		Down: `DROP TABLE alerts;`,
	},
	{
		Version:     2,
		Description: "create scrape_runs table",
		Up: `
CREATE TABLE scrape_runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'partial', 'failed')),
    dry_run INTEGER NOT NULL DEFAULT 0,
    scraped TEXT NOT NULL DEFAULT '{}',
    exact_duplicates INTEGER NOT NULL DEFAULT 0,
    fuzzy_duplicates INTEGER NOT NULL DEFAULT 0,
    known_skipped INTEGER NOT NULL DEFAULT 0,
    unique_count INTEGER NOT NULL DEFAULT 0,
    added INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_scrape_runs_started_at ON scrape_runs(started_at);
`,
		Down: `DROP TABLE scrape_runs;`,
	},
}
