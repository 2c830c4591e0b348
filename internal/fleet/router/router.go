// Package router orchestrates inbound fetch requests: it asks the selector
// for a target node, executes locally or forwards, and falls back to local
// execution when a remote node fails.
package router

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/asimaranov/telestory-backend/internal/fleet/account"
	"github.com/asimaranov/telestory-backend/internal/fleet/content"
	"github.com/asimaranov/telestory-backend/internal/fleet/db"
	"github.com/asimaranov/telestory-backend/internal/fleet/metrics"
	"github.com/asimaranov/telestory-backend/internal/fleet/registry"
	"github.com/asimaranov/telestory-backend/internal/shared/errors"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
	"github.com/asimaranov/telestory-backend/pkg/api"
)

// Route log tags attached to every fetch result.
const (
	RouteDirectBestNotFound = "direct_best_not_found"
	RouteDirectCurrent      = "direct_current_chosen"
	RouteRemoteNode         = "remote_node_chosen"
	routeFallbackPrefix     = "local_node_remote_error_fallback_"
)

// nodeSelector picks the target node for a request.
type nodeSelector interface {
	SelectBest(ctx context.Context, wantPremium bool) (registry.Node, error)
}

// forwarder executes a fetch on a remote node.
type forwarder interface {
	ForwardFetch(ctx context.Context, node, endpoint string, req *api.FetchRequest) (*api.FetchResponse, error)
}

// Config holds router construction parameters.
type Config struct {
	SelfName       string
	ForwardTimeout time.Duration
}

// Router routes fetch requests across the fleet.
type Router struct {
	cfg      Config
	pool     *account.Pool
	content  content.Client
	selector nodeSelector
	registry *registry.Registry
	client   forwarder
	store    db.Store
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewRouter creates a request router.
func NewRouter(cfg Config, pool *account.Pool, contentClient content.Client, sel nodeSelector, reg *registry.Registry, client forwarder, store db.Store, m *metrics.Metrics, log *logger.Logger) *Router {
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = 30 * time.Second
	}
	return &Router{
		cfg:      cfg,
		pool:     pool,
		content:  contentClient,
		selector: sel,
		registry: reg,
		client:   client,
		store:    store,
		metrics:  m,
		logger:   log.WithComponent("router"),
	}
}

// Route executes one fetch request: select a target, run locally when the
// target is self or none was found, otherwise forward. A remote failure
// demotes the target and falls back to local execution, so it surfaces with
// the same error taxonomy as a pure local run.
func (r *Router) Route(ctx context.Context, req *api.FetchRequest) (*api.FetchResponse, error) {
	target, err := r.selector.SelectBest(ctx, req.Premium)
	if err != nil {
		if !stderrors.Is(err, errors.ErrNoNodeAvailable) {
			r.logger.Warn("node selection failed, executing locally", "error", err)
		}
		return r.executeLocal(ctx, req, RouteDirectBestNotFound)
	}

	if target.Name == r.cfg.SelfName {
		return r.executeLocal(ctx, req, RouteDirectCurrent)
	}

	forwardCtx, cancel := context.WithTimeout(ctx, r.cfg.ForwardTimeout)
	resp, err := r.client.ForwardFetch(forwardCtx, target.Name, target.APIEndpoint, req)
	cancel()
	if err == nil {
		resp.RouteLog = RouteRemoteNode
		r.countOutcome(RouteRemoteNode)
		return resp, nil
	}

	reason := errors.RemoteReason(err)
	r.logger.Warn("remote execution failed, falling back to local",
		"node", target.Name,
		"reason", reason,
		"error", err,
	)
	if derr := r.registry.MarkUnreachable(ctx, target.Name); derr != nil {
		r.logger.ErrorCtx(ctx, "failed to demote node after forward failure", derr, "node", target.Name)
	}

	return r.executeLocal(ctx, req, routeFallbackPrefix+reason)
}

// ExecuteDirect runs the fetch on this node without selection. Remote nodes
// call this endpoint when forwarding.
func (r *Router) ExecuteDirect(ctx context.Context, req *api.FetchRequest) (*api.FetchResponse, error) {
	return r.executeLocal(ctx, req, RouteDirectCurrent)
}

// executeLocal checks out a session and runs the fetch against the content
// platform, tagging the result with the routing path that led here.
func (r *Router) executeLocal(ctx context.Context, req *api.FetchRequest, routeLog string) (*api.FetchResponse, error) {
	started := time.Now()

	lease, err := r.pool.Checkout(ctx)
	if err != nil {
		r.countError(err)
		return nil, err
	}
	defer lease.Release()

	acc := lease.Account()
	ctx = logger.WithAccountID(ctx, acc.ID)

	peer, err := r.content.ResolveIdentity(ctx, acc.SessionBlob, req.Identity)
	if err != nil {
		return nil, r.handleContentError(ctx, acc.ID, err)
	}

	items, err := r.content.FetchItems(ctx, acc.SessionBlob, peer, content.Selector{
		Limit:     req.Limit,
		MediaOnly: req.MediaOnly,
	})
	if err != nil {
		return nil, r.handleContentError(ctx, acc.ID, err)
	}

	fetched := make([]api.FetchedItem, 0, len(items))
	var consumed []string
	for _, item := range items {
		out := api.FetchedItem{
			ID:        item.ID,
			Kind:      item.Kind,
			CreatedAt: item.CreatedAt,
		}
		if item.MediaRef != "" {
			media, err := r.content.DownloadMedia(ctx, acc.SessionBlob, item)
			if err != nil {
				// One item's media failure degrades the item, not the fetch.
				r.logger.Warn("failed to download media",
					"item_id", item.ID,
					"error", err,
				)
			} else {
				out.MediaB64 = base64.StdEncoding.EncodeToString(media)
			}
		}
		fetched = append(fetched, out)
		consumed = append(consumed, item.ID)
	}

	if req.MarkConsumed && len(consumed) > 0 {
		if err := r.content.MarkConsumed(ctx, acc.SessionBlob, peer, consumed); err != nil {
			r.logger.Warn("failed to mark items consumed", "peer", peer.ID, "error", err)
		}
	}

	if err := r.store.InsertRequestLog(ctx, db.InsertRequestLogParams{
		NodeID:   r.cfg.SelfName,
		RouteLog: routeLog,
	}); err != nil {
		r.logger.Warn("failed to record request", "error", err)
	}

	r.countOutcome(routeLog)
	if r.metrics != nil {
		r.metrics.FetchDuration.Observe(time.Since(started).Seconds())
	}

	r.logger.Info("fetch executed",
		"identity", req.Identity,
		"items", len(fetched),
		"route_log", routeLog,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return &api.FetchResponse{
		Items:     fetched,
		Node:      r.cfg.SelfName,
		AccountID: acc.ID,
		RouteLog:  routeLog,
	}, nil
}

// handleContentError applies account lifecycle side effects for platform
// failures before surfacing them unchanged.
func (r *Router) handleContentError(ctx context.Context, accountID string, err error) error {
	r.countError(err)

	var authErr *errors.AuthError
	if stderrors.As(err, &authErr) {
		if derr := r.pool.Deactivate(ctx, accountID, fmt.Sprintf("auth_expired: %v", authErr.Err)); derr != nil {
			r.logger.ErrorCtx(ctx, "failed to deactivate account", derr, "account_id", accountID)
		}
		return err
	}

	var blockedErr *errors.BlockedError
	if stderrors.As(err, &blockedErr) {
		if berr := r.pool.RecordBan(ctx, accountID, blockedErr.Target, blockedErr.Error()); berr != nil {
			r.logger.ErrorCtx(ctx, "failed to record ban", berr, "account_id", accountID)
		}
		return err
	}

	return err
}

func (r *Router) countOutcome(routeLog string) {
	if r.metrics != nil {
		r.metrics.RoutingOutcomes.WithLabelValues(routeLog).Inc()
	}
}

func (r *Router) countError(err error) {
	if r.metrics == nil {
		return
	}

	kind := "other"
	switch {
	case stderrors.Is(err, errors.ErrPoolEmpty):
		kind = "pool_empty"
	case stderrors.Is(err, errors.ErrIdentityNotFound):
		kind = "identity_not_found"
	case errors.IsAuthExpired(err):
		kind = "auth_expired"
	case errors.IsTargetBlocked(err):
		kind = "target_blocked"
	case errors.RemoteReason(err) != "unknown":
		kind = "remote"
	}
	r.metrics.FetchErrors.WithLabelValues(kind).Inc()
}
