package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"fundwatch/internal/ai"
	"fundwatch/internal/domain"
	"fundwatch/internal/geo"
)

// Source is one scraping adapter. Implementations own their HTML or feed
// parsing and must not return candidates published before cutoff.
type Source interface {
	ID() string
	Name() string
	FetchCandidates(ctx context.Context, cutoff time.Time) ([]domain.Candidate, error)
}

type RawStore interface {
	// InsertIfAbsent inserts the posting unless its link is already known,
	// and reports whether a row was created. Safe under concurrent callers.
	InsertIfAbsent(ctx context.Context, posting *domain.RawPosting) (bool, error)
	// SelectPending returns pending rows in stable first-seen order;
	// limit <= 0 means no limit.
	SelectPending(ctx context.Context, limit int) ([]domain.RawPosting, error)
	// MarkStatus flips a pending row into a terminal status and reports
	// whether the row was claimed. A row already out of pending is left
	// untouched.
	MarkStatus(ctx context.Context, link string, to domain.Status) (bool, error)
	// TouchAttempt records a processing attempt without changing status.
	TouchAttempt(ctx context.Context, link string) error
}

type ProcessedStore interface {
	Upsert(ctx context.Context, opp *domain.ProcessedOpportunity) error
	// DeleteExpired removes rows whose deadline is before the given date.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	// DeleteStale removes rows created before the given cutoff whose deadline
	// is null AND whose deadline text matches one of the markers. Rolling
	// opportunities carry a null deadline too and must survive this purge.
	DeleteStale(ctx context.Context, createdBefore time.Time, markers []string) (int64, error)
}

// Engine is the AI backend: a cheap relevance classification followed, for
// survivors only, by full enrichment. Errors are ai.Error values tagged
// transient or permanent.
type Engine interface {
	ClassifyRegions(ctx context.Context, title, text string) (geo.Classification, error)
	Enrich(ctx context.Context, title, text string) (ai.EnrichedFields, error)
}

type Publisher interface {
	Publish(ctx context.Context, opp *domain.ProcessedOpportunity) error
	Close() error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
