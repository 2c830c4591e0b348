package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

// ApprovalScheduler periodically probes registered nodes and updates their
// approval status.
type ApprovalScheduler struct {
	interval time.Duration
	manager  ApprovalManager
	logger   *logger.Logger
}

// ApprovalManager defines the interface for node approval sweeps.
type ApprovalManager interface {
	ApprovalSweep(ctx context.Context) error
}

// NewApprovalScheduler creates a new approval scheduler.
func NewApprovalScheduler(interval time.Duration, manager ApprovalManager, log *logger.Logger) *ApprovalScheduler {
	return &ApprovalScheduler{
		interval: interval,
		manager:  manager,
		logger:   log,
	}
}

// Start begins the approval sweep loop. Blocks until ctx is canceled.
func (s *ApprovalScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Approval scheduler started",
		slog.Duration("interval", s.interval))

	// Probe immediately so a fresh node does not wait a full interval
	// before becoming eligible.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Approval scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ApprovalScheduler) sweep(ctx context.Context) {
	if err := s.manager.ApprovalSweep(ctx); err != nil {
		s.logger.Error("Approval sweep failed",
			slog.String("error", err.Error()))
	}
}
