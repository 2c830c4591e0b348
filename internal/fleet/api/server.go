package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/asimaranov/telestory-backend/internal/shared/errors"
	applogger "github.com/asimaranov/telestory-backend/internal/shared/logger"
	"github.com/asimaranov/telestory-backend/pkg/api"
)

// FetchRouterInterface defines the routing operations the API server depends on.
type FetchRouterInterface interface {
	Route(ctx context.Context, req *api.FetchRequest) (*api.FetchResponse, error)
	ExecuteDirect(ctx context.Context, req *api.FetchRequest) (*api.FetchResponse, error)
}

// StatsInterface defines the stats aggregation operations.
type StatsInterface interface {
	SnapshotLocal(ctx context.Context) api.NodeStatsSnapshot
	SnapshotFleet(ctx context.Context) api.FleetStatsResponse
}

// TransferInterface defines account transfer operations.
type TransferInterface interface {
	RequestTransfer(ctx context.Context, accountID, targetNode string) error
	TransferOut(ctx context.Context, accountID, targetNode string) error
}

// Server represents the HTTP API server with proper lifecycle management.
type Server struct {
	server      *http.Server
	router      FetchRouterInterface
	stats       StatsInterface
	transfers   TransferInterface
	metrics     http.Handler
	logger      *applogger.Logger
	corsOrigins []string
	nodeName    string
	version     string
	master      bool
}

// ServerConfig contains configuration for the API server.
type ServerConfig struct {
	Address     string
	CORSOrigins []string
	NodeName    string
	Version     string
	// Master enables the fleet-wide endpoints.
	Master bool
}

// NewServer creates a new API server instance.
func NewServer(config ServerConfig, router FetchRouterInterface, stats StatsInterface, transfers TransferInterface, metrics http.Handler, logger *applogger.Logger) *Server {
	return &Server{
		router:      router,
		stats:       stats,
		transfers:   transfers,
		metrics:     metrics,
		logger:      logger,
		corsOrigins: config.CORSOrigins,
		nodeName:    config.NodeName,
		version:     config.Version,
		master:      config.Master,
		server: &http.Server{
			Addr:         config.Address,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server and begins serving requests.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	handler := s.registerRoutes(mux)
	s.server.Handler = handler

	s.logger.InfoContext(ctx, "starting API server", "address", s.server.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("api server failed to start: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.InfoContext(ctx, "API server started successfully", "address", s.server.Addr)
		return nil
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}

	s.logger.InfoContext(ctx, "API server shut down successfully")
	return nil
}

// registerRoutes registers API routes with middleware.
func (s *Server) registerRoutes(mux *http.ServeMux) http.Handler {
	mux.HandleFunc("/healthz", s.healthHandler())

	mux.HandleFunc("GET /api/v1/stats/node", s.nodeStatsHandler())
	mux.HandleFunc("POST /api/v1/fetch/direct", s.fetchDirectHandler())

	// Fleet-wide routing and account placement run on the master only.
	if s.master {
		mux.HandleFunc("POST /api/v1/fetch", s.fetchHandler())
		mux.HandleFunc("GET /api/v1/stats/fleet", s.fleetStatsHandler())
		mux.HandleFunc("POST /api/v1/accounts/transfer", s.transferHandler())
	}

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	handler := Chain(
		RequestID(s.logger),
		Recovery(),
		Logging(),
		CORS(s.corsOrigins),
	)(mux)

	return handler
}

// healthHandler returns the service health status.
func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := api.HealthResponse{
			Status:  "healthy",
			Node:    s.nodeName,
			Version: s.version,
		}

		if err := WriteSuccess(w, response); err != nil {
			s.logger.ErrorCtx(r.Context(), "failed to encode health response", err)
		}
	}
}

// fetchHandler routes a fetch request to the best node in the fleet.
func (s *Server) fetchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestID(ctx)

		var req api.FetchRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.logger.ErrorCtx(ctx, "failed to parse fetch request", err)
			_ = WriteValidationError(w, err, requestID)
			return
		}

		if err := ValidateFetchRequest(&req); err != nil {
			s.logger.ErrorCtx(ctx, "invalid fetch request", err)
			_ = WriteValidationError(w, err, requestID)
			return
		}

		resp, err := s.router.Route(ctx, &req)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		if err := WriteSuccess(w, resp); err != nil {
			s.logger.ErrorCtx(ctx, "failed to encode fetch response", err)
		}
	}
}

// fetchDirectHandler serves a fetch request from this node's own pool. It is
// the endpoint masters forward to.
func (s *Server) fetchDirectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestID(ctx)

		var req api.FetchRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.logger.ErrorCtx(ctx, "failed to parse direct fetch request", err)
			_ = WriteValidationError(w, err, requestID)
			return
		}

		if err := ValidateFetchRequest(&req); err != nil {
			s.logger.ErrorCtx(ctx, "invalid direct fetch request", err)
			_ = WriteValidationError(w, err, requestID)
			return
		}

		resp, err := s.router.ExecuteDirect(ctx, &req)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		if err := WriteSuccess(w, resp); err != nil {
			s.logger.ErrorCtx(ctx, "failed to encode direct fetch response", err)
		}
	}
}

// nodeStatsHandler reports this node's own stats snapshot.
func (s *Server) nodeStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := s.stats.SnapshotLocal(r.Context())

		if err := WriteSuccess(w, snapshot); err != nil {
			s.logger.ErrorCtx(r.Context(), "failed to encode node stats response", err)
		}
	}
}

// fleetStatsHandler reports the aggregated fleet-wide stats.
func (s *Server) fleetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := s.stats.SnapshotFleet(r.Context())

		if err := WriteSuccess(w, snapshot); err != nil {
			s.logger.ErrorCtx(r.Context(), "failed to encode fleet stats response", err)
		}
	}
}

// transferHandler marks an account for transfer and executes the move.
func (s *Server) transferHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestID(ctx)

		var req api.TransferRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.logger.ErrorCtx(ctx, "failed to parse transfer request", err)
			_ = WriteValidationError(w, err, requestID)
			return
		}

		if err := ValidateTransferRequest(&req); err != nil {
			s.logger.ErrorCtx(ctx, "invalid transfer request", err)
			_ = WriteValidationError(w, err, requestID)
			return
		}

		if err := s.transfers.RequestTransfer(ctx, req.AccountID, req.TargetNode); err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		// Only the owning node may execute the move; for accounts bound
		// elsewhere the marker set above is picked up by that node's sweep.
		message := "Account transferred successfully"
		if err := s.transfers.TransferOut(ctx, req.AccountID, req.TargetNode); err != nil {
			if !errors.Is(err, apperrors.ErrAccountNotLocal) {
				WriteErrorResponse(w, r, err)
				return
			}
			message = "Transfer scheduled; the owning node will complete it"
		}

		s.logger.InfoContext(ctx, "account transfer accepted",
			"account_id", req.AccountID,
			"target_node", req.TargetNode)

		response := api.TransferResponse{
			AccountID:  req.AccountID,
			TargetNode: req.TargetNode,
			Message:    message,
		}

		if err := WriteSuccess(w, response); err != nil {
			s.logger.ErrorCtx(ctx, "failed to encode transfer response", err)
		}
	}
}
