package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fundwatch/internal/config"
	"fundwatch/internal/domain"
)

// Collector runs every source and fills the raw postings queue. Sources are
// independent; one failing only costs its own candidates.
type Collector struct {
	sources []Source
	raw     RawStore
	cfg     config.PipelineConfig
	logger  *slog.Logger
	now     func() time.Time
}

func NewCollector(sources []Source, raw RawStore, cfg config.PipelineConfig, logger *slog.Logger) *Collector {
	return &Collector{
		sources: sources,
		raw:     raw,
		cfg:     cfg,
		logger:  logger.With("stage", "collector"),
		now:     time.Now,
	}
}

func (c *Collector) Run(ctx context.Context) domain.CollectStats {
	cutoff := c.now().AddDate(0, -c.cfg.StalenessCutoffMonths, 0)
	c.logger.Info("collecting", "sources", len(c.sources), "staleness_cutoff", cutoff.Format("2006-01-02"))

	var (
		mu    sync.Mutex
		stats domain.CollectStats
		wg    sync.WaitGroup
	)

	for _, src := range c.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			s := c.collectSource(ctx, src, cutoff)

			mu.Lock()
			stats.Fetched += s.Fetched
			stats.Inserted += s.Inserted
			stats.Duplicates += s.Duplicates
			stats.SkippedStale += s.SkippedStale
			stats.SourceErrors += s.SourceErrors
			stats.StoreErrors += s.StoreErrors
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	c.logger.Info("collector finished",
		"fetched", stats.Fetched,
		"inserted", stats.Inserted,
		"duplicates", stats.Duplicates,
		"skipped_stale", stats.SkippedStale,
		"source_errors", stats.SourceErrors,
	)
	return stats
}

func (c *Collector) collectSource(ctx context.Context, src Source, cutoff time.Time) domain.CollectStats {
	logger := c.logger.With("source", src.ID())

	var stats domain.CollectStats
	candidates, err := src.FetchCandidates(ctx, cutoff)
	if err != nil {
		logger.Error("source failed", "error", err)
		stats.SourceErrors++
		return stats
	}
	stats.Fetched = len(candidates)

	if c.cfg.ScraperItemLimit > 0 && len(candidates) > c.cfg.ScraperItemLimit {
		candidates = candidates[:c.cfg.ScraperItemLimit]
	}

	for _, cand := range candidates {
		if cand.Link == "" {
			continue
		}
		if cand.PublishedAt != nil && cand.PublishedAt.Before(cutoff) {
			stats.SkippedStale++
			continue
		}

		inserted, err := c.raw.InsertIfAbsent(ctx, &domain.RawPosting{
			Link:        cand.Link,
			Title:       cand.Title,
			SourceName:  cand.SourceName,
			ScrapedText: cand.Text,
			PublishedAt: cand.PublishedAt,
			Status:      domain.StatusPending,
			FirstSeenAt: c.now(),
		})
		if err != nil {
			logger.Error("insert failed", "link", cand.Link, "error", err)
			stats.StoreErrors++
			continue
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Duplicates++
		}
	}

	logger.Info("source collected", "fetched", stats.Fetched, "inserted", stats.Inserted)
	return stats
}
