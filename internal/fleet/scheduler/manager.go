package scheduler

import (
	"context"
	"sync"

	"github.com/asimaranov/telestory-backend/internal/fleet/config"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

// Manager coordinates the periodic schedulers and provides unified lifecycle
// management.
type Manager struct {
	approvalScheduler    *ApprovalScheduler
	transferScheduler    *TransferScheduler
	maintenanceScheduler *MaintenanceScheduler
	logger               *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// ManagerInterface defines the interface for scheduler lifecycle management.
type ManagerInterface interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// NewManager creates a scheduler manager wiring the approval, transfer and
// maintenance loops. Approval sweeps are a master responsibility: pass a nil
// ApprovalManager on worker nodes and the approval loop is not started.
func NewManager(
	cfg config.SchedulerConfig,
	approval ApprovalManager,
	transfer TransferManager,
	maintenance MaintenanceManager,
	log *logger.Logger,
) *Manager {
	m := &Manager{
		transferScheduler:    NewTransferScheduler(cfg.TransferInterval, transfer, log),
		maintenanceScheduler: NewMaintenanceScheduler(cfg.MaintenanceInterval, cfg.RequestLogRetention, maintenance, log),
		logger:               log,
	}
	if approval != nil {
		m.approvalScheduler = NewApprovalScheduler(cfg.ApprovalInterval, approval, log)
	}
	return m
}

// Start launches all scheduler loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Warn("Scheduler manager is already running")
		return nil
	}

	m.logger.Info("Starting scheduler manager")

	m.ctx, m.cancel = context.WithCancel(ctx)

	if m.approvalScheduler != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.approvalScheduler.Start(m.ctx)
		}()
	} else {
		m.logger.Info("approval scheduler disabled on this node")
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.transferScheduler.Start(m.ctx)
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.maintenanceScheduler.Start(m.ctx)
	}()

	m.running = true
	m.logger.Info("Scheduler manager started successfully")

	return nil
}

// Stop gracefully shuts down all schedulers and waits for them to complete.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		m.logger.Warn("Scheduler manager is not running")
		return nil
	}

	m.logger.Info("Stopping scheduler manager")

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Scheduler manager stopped successfully")
	case <-ctx.Done():
		m.logger.Warn("Scheduler manager stop timed out")
		return ctx.Err()
	}

	m.running = false
	return nil
}

// IsRunning returns whether the scheduler manager is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
