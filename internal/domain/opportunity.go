package domain

import "time"

// Status drives the raw posting lifecycle. A posting enters the queue as
// StatusPending and leaves it through exactly one of the processed_* states.
type Status string

const (
	// StatusPending marks a posting as eligible for processing. Rows that hit
	// a transient failure stay pending and are retried on the next run.
	StatusPending Status = "pending_analysis"
	// StatusRelevant is the terminal success state; a matching row exists in
	// the processed opportunities table.
	StatusRelevant Status = "processed_relevant"
	// StatusIrrelevant marks postings rejected by the geographic filter.
	StatusIrrelevant Status = "processed_irrelevant"
	// StatusExpired marks postings whose deadline had already passed.
	StatusExpired Status = "processed_expired"
	// StatusAIError quarantines postings whose model output could not be
	// parsed. They are never retried.
	StatusAIError Status = "processed_ai_error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRelevant, StatusIrrelevant, StatusExpired, StatusAIError:
		return true
	}
	return false
}

// Terminal reports whether a row in this status may never be selected again.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// Candidate is a scraped posting as produced by a source collector, before it
// is persisted. PublishedAt is nil when the source could not resolve a date.
type Candidate struct {
	Link        string
	Title       string
	SourceName  string
	Text        string
	PublishedAt *time.Time
}

// RawPosting is a row in the raw postings queue, keyed by link.
type RawPosting struct {
	Link            string     `db:"link"`
	Title           string     `db:"title"`
	SourceName      string     `db:"source_name"`
	ScrapedText     string     `db:"scraped_text"`
	PublishedAt     *time.Time `db:"published_at"`
	Status          Status     `db:"status"`
	FirstSeenAt     time.Time  `db:"first_seen_at"`
	LastAttemptedAt *time.Time `db:"last_attempted_at"`
}

// ProcessedOpportunity is a validated, enriched funding opportunity. Deadline
// is nil when the model reported a rolling deadline or text that could not be
// parsed as a date; RawDeadlineText keeps the verbatim model output either way.
type ProcessedOpportunity struct {
	Link            string
	Title           string
	SourceName      string
	Funder          string
	FundingAmount   string
	Summary         string
	FocusAreas      []string
	Regions         []string
	Deadline        *time.Time
	RawDeadlineText string
	CreatedAt       time.Time
}
