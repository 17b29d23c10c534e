package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fundwatch/internal/domain"
)

type ProcessedOpportunityStore struct {
	db *sqlx.DB
}

func NewProcessedOpportunityStore(db *sqlx.DB) *ProcessedOpportunityStore {
	return &ProcessedOpportunityStore{db: db}
}

func (s *ProcessedOpportunityStore) Upsert(ctx context.Context, opp *domain.ProcessedOpportunity) error {
	query := `
		INSERT INTO processed_opportunities (
			link, title, source_name, funder, funding_amount, summary,
			focus_areas, regions, deadline, raw_deadline_text, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (link) DO UPDATE SET
			title = EXCLUDED.title,
			source_name = EXCLUDED.source_name,
			funder = EXCLUDED.funder,
			funding_amount = EXCLUDED.funding_amount,
			summary = EXCLUDED.summary,
			focus_areas = EXCLUDED.focus_areas,
			regions = EXCLUDED.regions,
			deadline = EXCLUDED.deadline,
			raw_deadline_text = EXCLUDED.raw_deadline_text`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		opp.Link,
		opp.Title,
		opp.SourceName,
		opp.Funder,
		opp.FundingAmount,
		opp.Summary,
		pq.StringArray(opp.FocusAreas),
		pq.StringArray(opp.Regions),
		opp.Deadline,
		opp.RawDeadlineText,
		opp.CreatedAt,
	)
	return err
}

func (s *ProcessedOpportunityStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM processed_opportunities WHERE deadline IS NOT NULL AND deadline < $1", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteStale removes opportunities that never stated a deadline at all and
// have outlived the retention window. The marker filter keeps null-deadline
// rolling opportunities alive indefinitely.
func (s *ProcessedOpportunityStore) DeleteStale(ctx context.Context, createdBefore time.Time, markers []string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_opportunities
		 WHERE deadline IS NULL AND raw_deadline_text = ANY($1) AND created_at < $2`,
		pq.Array(markers), createdBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
