package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fundwatch/internal/domain"
)

// Pipeline runs the three stages in order. Per-item failures end up in row
// statuses and stats counters; only store connectivity failures abort a run.
type Pipeline struct {
	maintenance *Maintenance
	collector   *Collector
	processor   *Processor
	logger      *slog.Logger
}

func NewPipeline(maintenance *Maintenance, collector *Collector, processor *Processor, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		maintenance: maintenance,
		collector:   collector,
		processor:   processor,
		logger:      logger,
	}
}

func (p *Pipeline) Run(ctx context.Context) (*domain.RunStats, error) {
	start := time.Now()
	stats := &domain.RunStats{}

	maintStats, err := p.maintenance.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("maintenance stage: %w", err)
	}
	stats.Maintenance = maintStats

	stats.Collect = p.collector.Run(ctx)

	procStats, err := p.processor.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("processor stage: %w", err)
	}
	stats.Process = procStats

	stats.Duration = time.Since(start)
	p.logger.Info("run finished",
		"duration", stats.Duration,
		"inserted", stats.Collect.Inserted,
		"relevant", stats.Process.Relevant,
		"retried", stats.Process.Retried,
	)
	return stats, nil
}
