package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fundwatch/internal/ai"
	"fundwatch/internal/config"
	"fundwatch/internal/dates"
	"fundwatch/internal/domain"
	"fundwatch/internal/geo"
)

// Processor drains the pending queue through the two-stage AI analysis and
// the expiration gate. Each posting resolves to exactly one outcome per run;
// transient failures leave the row pending for the next run.
type Processor struct {
	raw       RawStore
	processed ProcessedStore
	engine    Engine
	publisher Publisher
	txManager TransactionManager
	rules     geo.Rules
	cfg       config.PipelineConfig
	workers   int
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessor(
	raw RawStore,
	processed ProcessedStore,
	engine Engine,
	publisher Publisher,
	txManager TransactionManager,
	rules geo.Rules,
	cfg config.PipelineConfig,
	workers int,
	logger *slog.Logger,
) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		raw:       raw,
		processed: processed,
		engine:    engine,
		publisher: publisher,
		txManager: txManager,
		rules:     rules,
		cfg:       cfg,
		workers:   workers,
		logger:    logger.With("stage", "processor"),
		now:       time.Now,
	}
}

type outcome int

const (
	outcomeRelevant outcome = iota
	outcomeIrrelevant
	outcomeExpired
	outcomeQuarantined
	outcomeRetry
	outcomeError
	outcomeLost // row claimed by someone else; counted nowhere
)

// Run selects all pending rows and processes them with bounded concurrency.
// A store failure on the initial select aborts the run; everything after
// that is contained per item.
func (p *Processor) Run(ctx context.Context) (domain.ProcessStats, error) {
	postings, err := p.raw.SelectPending(ctx, 0)
	if err != nil {
		return domain.ProcessStats{}, err
	}

	stats := domain.ProcessStats{Selected: len(postings)}
	if len(postings) == 0 {
		p.logger.Info("nothing pending")
		return stats, nil
	}

	p.logger.Info("processing pending postings", "count", len(postings), "workers", p.workers)

	jobs := make(chan domain.RawPosting)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for posting := range jobs {
				out, published := p.processOne(ctx, posting)

				mu.Lock()
				switch out {
				case outcomeRelevant:
					stats.Relevant++
				case outcomeIrrelevant:
					stats.Irrelevant++
				case outcomeExpired:
					stats.Expired++
				case outcomeQuarantined:
					stats.Quarantined++
				case outcomeRetry:
					stats.Retried++
				case outcomeError:
					stats.Errors++
				}
				if published {
					stats.Published++
				}
				mu.Unlock()
			}
		}()
	}

loop:
	for _, posting := range postings {
		select {
		case <-ctx.Done():
			break loop
		case jobs <- posting:
		}
	}
	close(jobs)
	wg.Wait()

	p.logger.Info("processor finished",
		"relevant", stats.Relevant,
		"irrelevant", stats.Irrelevant,
		"expired", stats.Expired,
		"quarantined", stats.Quarantined,
		"retried", stats.Retried,
		"errors", stats.Errors,
	)
	return stats, nil
}

func (p *Processor) processOne(ctx context.Context, posting domain.RawPosting) (outcome, bool) {
	logger := p.logger.With("link", posting.Link)

	if err := p.raw.TouchAttempt(ctx, posting.Link); err != nil {
		logger.Error("touch attempt failed", "error", err)
		return outcomeError, false
	}

	cls, err := p.engine.ClassifyRegions(ctx, posting.Title, posting.ScrapedText)
	if err != nil {
		return p.handleAIError(ctx, logger, posting, "classify", err), false
	}

	relevant, reason := p.rules.Relevant(cls)
	if !relevant {
		logger.Info("posting discarded", "reason", reason)
		return p.markTerminal(ctx, logger, posting, domain.StatusIrrelevant), false
	}
	logger.Info("posting kept", "reason", reason)

	fields, err := p.engine.Enrich(ctx, posting.Title, posting.ScrapedText)
	if err != nil {
		return p.handleAIError(ctx, logger, posting, "enrich", err), false
	}

	today := calendarDay(p.now())
	var deadline *time.Time
	switch res := dates.Normalize(fields.Deadline, p.now()); res.Kind {
	case dates.Date:
		day := calendarDay(res.Date)
		if day.Before(today) {
			logger.Info("posting expired", "deadline", day.Format("2006-01-02"))
			return p.markTerminal(ctx, logger, posting, domain.StatusExpired), false
		}
		deadline = &day
	case dates.NoDeadline, dates.Unparseable:
		// Cannot refute a deadline we cannot parse. Ship with a null
		// deadline; the stale-record maintenance collects it eventually.
	}

	opp := &domain.ProcessedOpportunity{
		Link:            posting.Link,
		Title:           posting.Title,
		SourceName:      posting.SourceName,
		Funder:          fields.Funder,
		FundingAmount:   fields.FundingAmount,
		Summary:         fields.Summary,
		FocusAreas:      fields.FocusAreas,
		Regions:         cls.Eligible,
		Deadline:        deadline,
		RawDeadlineText: fields.Deadline,
		CreatedAt:       p.now(),
	}

	// The processed row and the status flip commit together; rerunning a
	// crashed item merely re-upserts the same record.
	var claimed bool
	err = p.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := p.processed.Upsert(txCtx, opp); err != nil {
			return err
		}
		var markErr error
		claimed, markErr = p.raw.MarkStatus(txCtx, posting.Link, domain.StatusRelevant)
		return markErr
	})
	if err != nil {
		logger.Error("persist failed, will retry next run", "error", err)
		return outcomeError, false
	}
	if !claimed {
		return outcomeLost, false
	}

	published := false
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, opp); err != nil {
			logger.Error("publish failed", "error", err)
		} else {
			published = true
		}
	}

	return outcomeRelevant, published
}

func (p *Processor) handleAIError(ctx context.Context, logger *slog.Logger, posting domain.RawPosting, step string, err error) outcome {
	var aiErr *ai.Error
	if errors.As(err, &aiErr) && aiErr.Kind == ai.Permanent {
		// The verbatim reply is the only evidence left once the row is
		// quarantined.
		logger.Error("model output unusable, quarantining",
			"step", step,
			"error", err,
			"raw_output", aiErr.RawOutput,
		)
		return p.markTerminal(ctx, logger, posting, domain.StatusAIError)
	}

	logger.Warn("transient model failure, leaving in queue", "step", step, "error", err)
	return outcomeRetry
}

// calendarDay reduces t to its calendar date in t's location, pinned to UTC
// for comparisons. Deadlines are dates, not instants.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *Processor) markTerminal(ctx context.Context, logger *slog.Logger, posting domain.RawPosting, status domain.Status) outcome {
	claimed, err := p.raw.MarkStatus(ctx, posting.Link, status)
	if err != nil {
		logger.Error("status update failed", "status", status, "error", err)
		return outcomeError
	}
	if !claimed {
		return outcomeLost
	}

	switch status {
	case domain.StatusIrrelevant:
		return outcomeIrrelevant
	case domain.StatusExpired:
		return outcomeExpired
	case domain.StatusAIError:
		return outcomeQuarantined
	}
	return outcomeError
}
