package fleet

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asimaranov/telestory-backend/internal/fleet/account"
	"github.com/asimaranov/telestory-backend/internal/fleet/api"
	"github.com/asimaranov/telestory-backend/internal/fleet/config"
	"github.com/asimaranov/telestory-backend/internal/fleet/content"
	"github.com/asimaranov/telestory-backend/internal/fleet/db"
	"github.com/asimaranov/telestory-backend/internal/fleet/events"
	"github.com/asimaranov/telestory-backend/internal/fleet/metrics"
	"github.com/asimaranov/telestory-backend/internal/fleet/nodeclient"
	"github.com/asimaranov/telestory-backend/internal/fleet/registry"
	"github.com/asimaranov/telestory-backend/internal/fleet/router"
	"github.com/asimaranov/telestory-backend/internal/fleet/scheduler"
	"github.com/asimaranov/telestory-backend/internal/fleet/selector"
	"github.com/asimaranov/telestory-backend/internal/fleet/stats"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
	"github.com/asimaranov/telestory-backend/pkg/crypto"
)

// Version is stamped at build time.
var Version = "dev"

// SchedulerInterface defines the interface for scheduler operations
type SchedulerInterface interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// APIServerInterface defines the interface for API server operations
type APIServerInterface interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Service coordinates all fleet components and manages their lifecycle
type Service struct {
	config    *config.Config
	logger    *logger.Logger
	scheduler SchedulerInterface
	apiServer APIServerInterface

	store    db.Store
	bus      *events.Bus
	registry *registry.Registry
	pool     *account.Pool
	metrics  *metrics.Metrics

	contentClient content.Client

	ctx    context.Context
	cancel context.CancelFunc

	signalChan            chan os.Signal
	shutdownWg            sync.WaitGroup
	isRunning             bool
	mu                    sync.RWMutex
	disableSignalHandling bool // For testing
}

// NewService creates a Service and initializes all components in dependency
// order. The content client is injected: the coordination layer is agnostic
// to the concrete platform.
func NewService(cfg *config.Config, contentClient content.Client, log *logger.Logger) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())

	service := &Service{
		config:        cfg,
		logger:        log,
		contentClient: contentClient,
		ctx:           ctx,
		cancel:        cancel,
		signalChan:    make(chan os.Signal, 1),
	}

	if err := service.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize service components: %w", err)
	}

	return service, nil
}

// initializeComponents creates and wires all service components in proper dependency order
func (s *Service) initializeComponents() error {
	s.logger.Info("initializing service components")

	store, err := db.NewStore(&db.Config{
		Path:            s.config.DB.Path,
		MaxOpenConns:    s.config.DB.MaxOpenConns,
		MaxIdleConns:    s.config.DB.MaxIdleConns,
		ConnMaxLifetime: s.config.DB.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database store: %w", err)
	}
	s.store = store

	sealKey, err := s.config.Session.SealKeyBytes()
	if err != nil {
		return fmt.Errorf("invalid session seal key: %w", err)
	}
	box := crypto.NewSessionBox(sealKey)

	s.bus = events.NewBus(s.logger)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.New(promRegistry)
	s.metrics.Observe(s.bus)

	s.registry = registry.NewRegistry(registry.Config{
		SelfName:     s.config.Node.Name,
		SelfAddress:  s.config.Node.Address,
		SelfEndpoint: s.config.Node.APIEndpoint,
		SelfTier:     s.config.Node.Tier,
		ProbeTimeout: s.config.Scheduler.ProbeTimeout,
	}, s.store, s.logger)
	s.registry.AttachBus(s.bus)

	s.pool = account.NewPool(account.PoolConfig{
		NodeName:         s.config.Node.Name,
		HistoryRetention: s.config.Session.HistoryRetention,
	}, s.store, box, s.bus, s.logger)

	client := nodeclient.NewClient(s.config.Router.ForwardTimeout, s.logger)

	aggregator := stats.NewAggregator(
		s.config.Stats,
		s.config.Node.Name,
		s.config.Node.Tier,
		s.store,
		s.registry,
		client,
		s.logger,
	)

	sel := selector.NewSelector(s.config.Selector.Weights, s.registry, aggregator, s.logger)

	fetchRouter := router.NewRouter(router.Config{
		SelfName:       s.config.Node.Name,
		ForwardTimeout: s.config.Router.ForwardTimeout,
	}, s.pool, s.contentClient, sel, s.registry, client, s.store, s.metrics, s.logger)

	// Only the master probes and approves peers; workers run the transfer
	// and maintenance loops alone.
	var approval scheduler.ApprovalManager
	if s.config.Node.Master {
		approval = s.registry
	}
	s.scheduler = scheduler.NewManager(
		s.config.Scheduler,
		approval,
		s.pool,
		s.store,
		s.logger,
	)

	s.apiServer = api.NewServer(api.ServerConfig{
		Address:     s.config.API.ListenAddr,
		CORSOrigins: s.config.API.CORSOrigins,
		NodeName:    s.config.Node.Name,
		Version:     Version,
		Master:      s.config.Node.Master,
	}, fetchRouter, aggregator, s.pool, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}), s.logger)

	s.logger.Info("all service components initialized successfully")
	return nil
}

// Start initializes and starts all service components in proper dependency order
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("service is already running")
	}

	s.logger.Info("starting fleet service",
		"node", s.config.Node.Name,
		"master", s.config.Node.Master,
		"version", Version)

	if !s.disableSignalHandling {
		s.setupSignalHandling()
	}

	if _, err := s.registry.RegisterSelf(s.ctx); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}

	if err := s.registry.Load(s.ctx); err != nil {
		return fmt.Errorf("failed to load node registry: %w", err)
	}

	if err := s.pool.Load(s.ctx); err != nil {
		return fmt.Errorf("failed to load account pool: %w", err)
	}
	s.metrics.AccountsInPool.Set(float64(s.pool.Size()))

	if err := s.scheduler.Start(s.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if err := s.apiServer.Start(s.ctx); err != nil {
		if stopErr := s.scheduler.Stop(s.ctx); stopErr != nil {
			s.logger.Error("failed to stop scheduler during cleanup", "error", stopErr)
		}
		return fmt.Errorf("failed to start API server: %w", err)
	}

	s.isRunning = true
	s.logger.Info("fleet service started successfully")
	return nil
}

// setupSignalHandling configures signal handling for graceful shutdown
func (s *Service) setupSignalHandling() {
	signal.Notify(s.signalChan, syscall.SIGINT, syscall.SIGTERM)

	s.shutdownWg.Add(1)
	go s.handleSignals()
}

// handleSignals processes shutdown signals and initiates graceful shutdown
func (s *Service) handleSignals() {
	defer s.shutdownWg.Done()

	select {
	case sig := <-s.signalChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()

		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error("error during graceful shutdown", "error", err)
		}

	case <-s.ctx.Done():
		s.logger.Debug("signal handler exiting due to service context cancellation")
	}
}

func (s *Service) shutdownTimeout() time.Duration {
	if s.config != nil && s.config.Service.ShutdownTimeout > 0 {
		return s.config.Service.ShutdownTimeout
	}
	return 30 * time.Second
}

// WaitForShutdown blocks until the service receives a shutdown signal or context is cancelled
func (s *Service) WaitForShutdown() {
	s.logger.Info("service running, waiting for shutdown signal")

	s.shutdownWg.Wait()

	s.logger.Info("service shutdown complete")
}

// Stop gracefully shuts down all service components with proper cleanup order
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		s.logger.Warn("service is not running")
		return nil
	}

	s.logger.Info("stopping fleet service")

	shutdownCtx := ctx
	if ctx == nil || ctx == context.Background() {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
	}

	var lastErr error

	if !s.disableSignalHandling {
		signal.Stop(s.signalChan)
		close(s.signalChan)
	}

	// Reverse dependency order: external interface first.
	if s.apiServer != nil {
		if err := s.apiServer.Stop(shutdownCtx); err != nil {
			s.logger.Error("failed to stop API server", "error", err)
			lastErr = err
		}
	}

	if s.scheduler != nil {
		if err := s.scheduler.Stop(shutdownCtx); err != nil {
			s.logger.Error("failed to stop scheduler", "error", err)
			lastErr = err
		}
	}

	if s.bus != nil {
		s.bus.Close()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close database store", "error", err)
			lastErr = err
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("all background goroutines finished")
	case <-shutdownCtx.Done():
		s.logger.Warn("timeout waiting for background goroutines to finish")
		if lastErr == nil {
			lastErr = shutdownCtx.Err()
		}
	}

	s.isRunning = false

	if lastErr != nil {
		return fmt.Errorf("service shutdown completed with errors: %w", lastErr)
	}

	s.logger.Info("fleet service stopped successfully")
	return nil
}

// Health checks the health of all service components
func (s *Service) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return fmt.Errorf("service is not running")
	}

	select {
	case <-s.ctx.Done():
		return fmt.Errorf("service context cancelled")
	default:
		if s.store != nil {
			if err := s.store.Ping(context.Background()); err != nil {
				return fmt.Errorf("database health check failed: %w", err)
			}
		}
		return nil
	}
}

// IsRunning returns whether the service is currently running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Context returns the service context for components that need it
func (s *Service) Context() context.Context {
	return s.ctx
}
