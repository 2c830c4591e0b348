package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

// TransferScheduler periodically retries account transfers whose markers are
// still pending, picking up moves that were interrupted mid-flight.
type TransferScheduler struct {
	interval time.Duration
	manager  TransferManager
	logger   *logger.Logger
}

// TransferManager defines the interface for pending transfer sweeps.
type TransferManager interface {
	SweepTransfers(ctx context.Context) error
}

// NewTransferScheduler creates a new transfer scheduler.
func NewTransferScheduler(interval time.Duration, manager TransferManager, log *logger.Logger) *TransferScheduler {
	return &TransferScheduler{
		interval: interval,
		manager:  manager,
		logger:   log,
	}
}

// Start begins the transfer sweep loop. Blocks until ctx is canceled.
func (s *TransferScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Transfer scheduler started",
		slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Transfer scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TransferScheduler) sweep(ctx context.Context) {
	if err := s.manager.SweepTransfers(ctx); err != nil {
		s.logger.Error("Transfer sweep failed",
			slog.String("error", err.Error()))
	}
}
