//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fundwatch/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_raw_postings.up.sql"),
			filepath.Join(migrationsPath, "002_create_processed_opportunities.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM processed_opportunities")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM raw_postings")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) newPending(link string) *domain.RawPosting {
	return &domain.RawPosting{
		Link:        link,
		Title:       "Test Grant",
		SourceName:  "test-source",
		ScrapedText: "grant body",
		Status:      domain.StatusPending,
		FirstSeenAt: time.Now().Truncate(time.Microsecond),
	}
}

func (s *PostgresIntegrationSuite) TestRawPostingStore_InsertIfAbsent() {
	store := NewRawPostingStore(s.db)

	inserted, err := store.InsertIfAbsent(s.ctx, s.newPending("https://example.org/a"))
	s.Require().NoError(err)
	s.True(inserted)

	inserted, err = store.InsertIfAbsent(s.ctx, s.newPending("https://example.org/a"))
	s.Require().NoError(err)
	s.False(inserted)
}

func (s *PostgresIntegrationSuite) TestRawPostingStore_SelectPendingOrder() {
	store := NewRawPostingStore(s.db)

	older := s.newPending("https://example.org/older")
	older.FirstSeenAt = older.FirstSeenAt.Add(-time.Hour)
	newer := s.newPending("https://example.org/newer")

	_, err := store.InsertIfAbsent(s.ctx, newer)
	s.Require().NoError(err)
	_, err = store.InsertIfAbsent(s.ctx, older)
	s.Require().NoError(err)

	postings, err := store.SelectPending(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(postings, 2)
	s.Equal("https://example.org/older", postings[0].Link)

	postings, err = store.SelectPending(s.ctx, 1)
	s.Require().NoError(err)
	s.Len(postings, 1)
}

func (s *PostgresIntegrationSuite) TestRawPostingStore_MarkStatusClaims() {
	store := NewRawPostingStore(s.db)

	_, err := store.InsertIfAbsent(s.ctx, s.newPending("https://example.org/a"))
	s.Require().NoError(err)

	claimed, err := store.MarkStatus(s.ctx, "https://example.org/a", domain.StatusIrrelevant)
	s.Require().NoError(err)
	s.True(claimed)

	// A terminal row cannot be claimed again, into any status.
	claimed, err = store.MarkStatus(s.ctx, "https://example.org/a", domain.StatusRelevant)
	s.Require().NoError(err)
	s.False(claimed)

	postings, err := store.SelectPending(s.ctx, 0)
	s.Require().NoError(err)
	s.Empty(postings)
}

func (s *PostgresIntegrationSuite) TestRawPostingStore_TouchAttempt() {
	store := NewRawPostingStore(s.db)

	_, err := store.InsertIfAbsent(s.ctx, s.newPending("https://example.org/a"))
	s.Require().NoError(err)

	s.Require().NoError(store.TouchAttempt(s.ctx, "https://example.org/a"))

	postings, err := store.SelectPending(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(postings, 1)
	s.NotNil(postings[0].LastAttemptedAt)
}

func (s *PostgresIntegrationSuite) TestProcessedStore_UpsertIdempotent() {
	store := NewProcessedOpportunityStore(s.db)
	deadline := time.Now().AddDate(0, 1, 0).Truncate(time.Microsecond)

	opp := &domain.ProcessedOpportunity{
		Link:            "https://example.org/a",
		Title:           "Test Grant",
		SourceName:      "test-source",
		Funder:          "Test Foundation",
		FundingAmount:   "$10,000",
		Summary:         "A grant.",
		FocusAreas:      []string{"Health", "Education"},
		Regions:         []string{"Ethiopia"},
		Deadline:        &deadline,
		RawDeadlineText: "next month",
		CreatedAt:       time.Now().Truncate(time.Microsecond),
	}

	s.Require().NoError(store.Upsert(s.ctx, opp))

	opp.Funder = "Renamed Foundation"
	s.Require().NoError(store.Upsert(s.ctx, opp))

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM processed_opportunities"))
	s.Equal(1, count)

	var funder string
	s.Require().NoError(s.db.GetContext(s.ctx, &funder,
		"SELECT funder FROM processed_opportunities WHERE link = $1", opp.Link))
	s.Equal("Renamed Foundation", funder)
}

func (s *PostgresIntegrationSuite) TestProcessedStore_DeleteExpired() {
	store := NewProcessedOpportunityStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	past := now.AddDate(0, 0, -30)
	future := now.AddDate(0, 0, 30)

	s.Require().NoError(store.Upsert(s.ctx, &domain.ProcessedOpportunity{
		Link: "https://example.org/past", Title: "Past", SourceName: "t",
		Deadline: &past, CreatedAt: now,
	}))
	s.Require().NoError(store.Upsert(s.ctx, &domain.ProcessedOpportunity{
		Link: "https://example.org/future", Title: "Future", SourceName: "t",
		Deadline: &future, CreatedAt: now,
	}))
	s.Require().NoError(store.Upsert(s.ctx, &domain.ProcessedOpportunity{
		Link: "https://example.org/null", Title: "Null", SourceName: "t",
		CreatedAt: now,
	}))

	deleted, err := store.DeleteExpired(s.ctx, now.AddDate(0, 0, -7))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	var links []string
	s.Require().NoError(s.db.SelectContext(s.ctx, &links,
		"SELECT link FROM processed_opportunities ORDER BY link"))
	s.Equal([]string{"https://example.org/future", "https://example.org/null"}, links)
}

func (s *PostgresIntegrationSuite) TestProcessedStore_DeleteStale() {
	store := NewProcessedOpportunityStore(s.db)
	now := time.Now().Truncate(time.Microsecond)
	future := now.AddDate(0, 1, 0)

	s.Require().NoError(store.Upsert(s.ctx, &domain.ProcessedOpportunity{
		Link: "https://example.org/old-unknown", Title: "Unknown", SourceName: "t",
		RawDeadlineText: "Not Specified", CreatedAt: now.AddDate(0, -10, 0),
	}))
	s.Require().NoError(store.Upsert(s.ctx, &domain.ProcessedOpportunity{
		Link: "https://example.org/old-rolling", Title: "Rolling", SourceName: "t",
		RawDeadlineText: "Rolling", CreatedAt: now.AddDate(0, -10, 0),
	}))
	s.Require().NoError(store.Upsert(s.ctx, &domain.ProcessedOpportunity{
		Link: "https://example.org/old-dated", Title: "Dated", SourceName: "t",
		Deadline: &future, CreatedAt: now.AddDate(0, -10, 0),
	}))
	s.Require().NoError(store.Upsert(s.ctx, &domain.ProcessedOpportunity{
		Link: "https://example.org/fresh-unknown", Title: "Fresh", SourceName: "t",
		RawDeadlineText: "Not Specified", CreatedAt: now,
	}))

	deleted, err := store.DeleteStale(s.ctx, now.AddDate(0, -9, 0), []string{"Not Specified", "N/A"})
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	// The aged rolling opportunity is still valid and must survive.
	var links []string
	s.Require().NoError(s.db.SelectContext(s.ctx, &links,
		"SELECT link FROM processed_opportunities ORDER BY link"))
	s.Equal([]string{
		"https://example.org/fresh-unknown",
		"https://example.org/old-dated",
		"https://example.org/old-rolling",
	}, links)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_RollbackLeavesRowPending() {
	rawStore := NewRawPostingStore(s.db)
	processedStore := NewProcessedOpportunityStore(s.db)
	tm := NewTransactionManager(s.db)

	_, err := rawStore.InsertIfAbsent(s.ctx, s.newPending("https://example.org/a"))
	s.Require().NoError(err)

	err = tm.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if err := processedStore.Upsert(txCtx, &domain.ProcessedOpportunity{
			Link: "https://example.org/a", Title: "T", SourceName: "t", CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		claimed, err := rawStore.MarkStatus(txCtx, "https://example.org/a", domain.StatusRelevant)
		s.Require().NoError(err)
		s.Require().True(claimed)
		return errors.New("forced rollback")
	})
	s.Error(err)

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM processed_opportunities"))
	s.Equal(0, count)

	postings, err := rawStore.SelectPending(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(postings, 1)
}
