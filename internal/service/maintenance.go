package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fundwatch/internal/config"
	"fundwatch/internal/domain"
)

// Maintenance purges processed opportunities that are no longer actionable:
// past-deadline rows after a grace period, and rows without any stated
// deadline after a longer retention window. Idempotent by construction.
type Maintenance struct {
	processed ProcessedStore
	cfg       config.PipelineConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewMaintenance(processed ProcessedStore, cfg config.PipelineConfig, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		processed: processed,
		cfg:       cfg,
		logger:    logger.With("stage", "maintenance"),
		now:       time.Now,
	}
}

// Deadline texts meaning the model found no deadline at all. Rolling and
// ongoing markers are deliberately absent: those opportunities stay valid.
var staleDeadlineMarkers = []string{"Not Specified", "N/A"}

func (m *Maintenance) Run(ctx context.Context) (domain.MaintenanceStats, error) {
	var stats domain.MaintenanceStats

	deadlineCutoff := calendarDay(m.now().AddDate(0, 0, -m.cfg.GracePeriodDays))
	expired, err := m.processed.DeleteExpired(ctx, deadlineCutoff)
	if err != nil {
		return stats, fmt.Errorf("delete expired: %w", err)
	}
	stats.Expired = expired

	staleCutoff := m.now().AddDate(0, -m.cfg.StaleRecordMonths, 0)
	stale, err := m.processed.DeleteStale(ctx, staleCutoff, staleDeadlineMarkers)
	if err != nil {
		return stats, fmt.Errorf("delete stale: %w", err)
	}
	stats.Stale = stale

	m.logger.Info("maintenance finished", "expired_deleted", stats.Expired, "stale_deleted", stats.Stale)
	return stats, nil
}
