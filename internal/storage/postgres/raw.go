package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"fundwatch/internal/domain"
)

// RawPostingStore persists the raw postings queue. Links are the primary key;
// all writes are idempotent with respect to reruns.
type RawPostingStore struct {
	db *sqlx.DB
}

func NewRawPostingStore(db *sqlx.DB) *RawPostingStore {
	return &RawPostingStore{db: db}
}

func (s *RawPostingStore) InsertIfAbsent(ctx context.Context, posting *domain.RawPosting) (bool, error) {
	query := `
		INSERT INTO raw_postings (
			link, title, source_name, scraped_text, published_at, status, first_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (link) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		posting.Link,
		posting.Title,
		posting.SourceName,
		posting.ScrapedText,
		posting.PublishedAt,
		posting.Status,
		posting.FirstSeenAt,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *RawPostingStore) SelectPending(ctx context.Context, limit int) ([]domain.RawPosting, error) {
	query := `
		SELECT link, title, source_name, scraped_text, published_at, status,
		       first_seen_at, last_attempted_at
		FROM raw_postings
		WHERE status = $1
		ORDER BY first_seen_at ASC`

	args := []any{domain.StatusPending}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var postings []domain.RawPosting
	if err := s.db.SelectContext(ctx, &postings, query, args...); err != nil {
		return nil, err
	}
	return postings, nil
}

// MarkStatus flips a pending row to its terminal status. The pending guard
// makes the flip a claim: the caller that sees true owns the transition.
func (s *RawPostingStore) MarkStatus(ctx context.Context, link string, to domain.Status) (bool, error) {
	query := `UPDATE raw_postings SET status = $1 WHERE link = $2 AND status = $3`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, to, link, domain.StatusPending)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *RawPostingStore) TouchAttempt(ctx context.Context, link string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE raw_postings SET last_attempted_at = NOW() WHERE link = $1", link)
	return err
}
