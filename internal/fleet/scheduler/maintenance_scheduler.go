package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

// MaintenanceScheduler prunes aged request log rows so the accounting tables
// stay bounded.
type MaintenanceScheduler struct {
	interval  time.Duration
	retention time.Duration
	manager   MaintenanceManager
	logger    *logger.Logger
}

// MaintenanceManager defines the interface for storage maintenance.
type MaintenanceManager interface {
	PruneRequestLog(ctx context.Context, before time.Time) (int64, error)
}

// NewMaintenanceScheduler creates a new maintenance scheduler.
func NewMaintenanceScheduler(interval, retention time.Duration, manager MaintenanceManager, log *logger.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		interval:  interval,
		retention: retention,
		manager:   manager,
		logger:    log,
	}
}

// Start begins the maintenance loop. Blocks until ctx is canceled.
func (s *MaintenanceScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Maintenance scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("retention", s.retention))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Maintenance scheduler stopped")
			return
		case <-ticker.C:
			s.prune(ctx)
		}
	}
}

func (s *MaintenanceScheduler) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)

	pruned, err := s.manager.PruneRequestLog(ctx, cutoff)
	if err != nil {
		s.logger.Error("Request log prune failed",
			slog.String("error", err.Error()))
		return
	}

	if pruned > 0 {
		s.logger.Info("Pruned request log rows",
			slog.Int64("rows", pruned),
			slog.Time("cutoff", cutoff))
	}
}
