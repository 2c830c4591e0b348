// Package registry tracks fleet membership: which nodes exist, whether they
// passed the approval health check, and whether routing considers them usable.
package registry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/asimaranov/telestory-backend/internal/fleet/config"
	"github.com/asimaranov/telestory-backend/internal/fleet/db"
	"github.com/asimaranov/telestory-backend/internal/fleet/events"
	"github.com/asimaranov/telestory-backend/internal/shared/errors"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

// Node is one fleet member as seen by the registry.
type Node struct {
	Name         string
	IPAddress    string
	APIEndpoint  string
	Tier         config.NodeTier
	Active       bool
	Approved     bool
	LastActiveAt time.Time
	FirstSeenAt  time.Time
}

// IsPremium reports whether the node runs on the premium tier.
func (n Node) IsPremium() bool {
	return n.Tier == config.TierPremium
}

// Config holds the identity of the local node and probe settings.
type Config struct {
	SelfName     string
	SelfAddress  string
	SelfEndpoint string
	SelfTier     config.NodeTier
	ProbeTimeout time.Duration
}

// Registry is the in-memory view of all fleet nodes, backed by the store.
// Approval and activity flags are mutated independently: the approval sweep
// owns `approved`, the routing layer owns `active`.
type Registry struct {
	cfg    Config
	store  db.Store
	logger *logger.Logger
	client *http.Client
	bus    *events.Bus

	mu    sync.RWMutex
	nodes map[string]Node
}

// AttachBus wires lifecycle notifications; optional.
func (r *Registry) AttachBus(bus *events.Bus) {
	r.bus = bus
}

// NewRegistry creates a registry. Call Load before serving requests.
func NewRegistry(cfg Config, store db.Store, log *logger.Logger) *Registry {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Registry{
		cfg:    cfg,
		store:  store,
		logger: log.WithComponent("registry"),
		client: &http.Client{Timeout: cfg.ProbeTimeout},
		nodes:  make(map[string]Node),
	}
}

// Load populates the in-memory view from the store.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = make(map[string]Node, len(rows))
	for _, row := range rows {
		r.nodes[row.Name] = fromRow(row)
	}

	r.logger.Info("registry loaded", "nodes", len(rows))
	return nil
}

// RegisterSelf upserts the local node record and adds it to the registry.
// Safe to call on every startup: connection details are refreshed while
// approval state is preserved.
func (r *Registry) RegisterSelf(ctx context.Context) (Node, error) {
	address := r.cfg.SelfAddress
	if address == "" {
		discovered, err := outboundAddress()
		if err != nil {
			return Node{}, fmt.Errorf("failed to discover node address: %w", err)
		}
		address = discovered
	}

	row, err := r.store.UpsertNode(ctx, db.UpsertNodeParams{
		Name:        r.cfg.SelfName,
		IPAddress:   address,
		APIEndpoint: r.cfg.SelfEndpoint,
		Tier:        string(r.cfg.SelfTier),
	})
	if err != nil {
		return Node{}, fmt.Errorf("failed to register node %s: %w", r.cfg.SelfName, err)
	}

	node := fromRow(row)
	r.mu.Lock()
	r.nodes[node.Name] = node
	r.mu.Unlock()

	r.logger.Info("node registered",
		"node", node.Name,
		"address", node.IPAddress,
		"tier", node.Tier,
		"approved", node.Approved,
	)
	return node, nil
}

// ApprovalSweep probes every known node except self and re-evaluates its
// approval flag from the outcome. A failed probe demotes the node to
// unapproved; it never aborts the sweep of the remaining nodes.
func (r *Registry) ApprovalSweep(ctx context.Context) error {
	op := r.logger.StartOp(ctx, "approval_sweep")

	var approved, demoted int
	for _, node := range r.List() {
		if node.Name == r.cfg.SelfName {
			continue
		}

		err := r.probe(ctx, node.APIEndpoint)
		if err != nil {
			demoted++
			r.logger.Warn("node failed approval probe",
				"node", node.Name,
				"endpoint", node.APIEndpoint,
				"error", err,
			)
			if err := r.setApproved(ctx, node.Name, false); err != nil {
				r.logger.ErrorCtx(ctx, "failed to persist node demotion", err, "node", node.Name)
			}
			continue
		}

		approved++
		if err := r.setApproved(ctx, node.Name, true); err != nil {
			r.logger.ErrorCtx(ctx, "failed to persist node approval", err, "node", node.Name)
		}
	}

	op.Complete("approval sweep finished", "approved", approved, "demoted", demoted)
	return nil
}

// probe issues the liveness check against a node's health endpoint.
func (r *Registry) probe(ctx context.Context, endpoint string) error {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// setApproved persists the approval flag and, on success, stamps last-seen.
// The lock is held across the store write: the two flags are owned by
// different callers and a stale read here must never overwrite the other one.
func (r *Registry) setApproved(ctx context.Context, name string, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[name]
	if !ok {
		return errors.ErrNodeNotFound
	}

	if err := r.store.SetNodeApproved(ctx, db.SetNodeApprovedParams{
		Name:     name,
		Approved: approved,
	}); err != nil {
		return err
	}

	node.Approved = approved
	if approved {
		now := time.Now().UTC()
		if err := r.store.TouchNodeActivity(ctx, db.TouchNodeActivityParams{Name: name, LastActiveAt: now}); err != nil {
			return err
		}
		node.LastActiveAt = now
	}

	r.nodes[name] = node
	return nil
}

// SetActive flips the routing flag of a node without touching approval.
func (r *Registry) SetActive(ctx context.Context, name string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[name]
	if !ok {
		return errors.ErrNodeNotFound
	}

	if err := r.store.SetNodeActive(ctx, db.SetNodeActiveParams{
		Name:   name,
		Active: active,
	}); err != nil {
		return fmt.Errorf("failed to update node %s: %w", name, err)
	}

	node.Active = active
	r.nodes[name] = node

	r.logger.Info("node routing state changed", "node", name, "active", active)
	return nil
}

// MarkUnreachable demotes a node that failed to serve a forwarded request or a
// stats fetch: it becomes both inactive and unapproved until the next sweep
// clears it.
func (r *Registry) MarkUnreachable(ctx context.Context, name string) error {
	r.mu.Lock()
	node, ok := r.nodes[name]
	if !ok {
		r.mu.Unlock()
		return errors.ErrNodeNotFound
	}

	if err := r.store.UpdateNodeStatus(ctx, db.UpdateNodeStatusParams{
		Name:     name,
		Active:   false,
		Approved: false,
	}); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to update node %s: %w", name, err)
	}

	node.Active = false
	node.Approved = false
	r.nodes[name] = node
	r.mu.Unlock()

	r.logger.Warn("node marked unreachable", "node", name)
	if r.bus != nil {
		if err := r.bus.Publish(ctx, events.NewEvent(events.TypeNodeUnreachable, map[string]interface{}{
			"node": name,
		})); err != nil {
			r.logger.Warn("failed to publish event", "type", events.TypeNodeUnreachable, "error", err)
		}
	}
	return nil
}

// Get returns a node by name.
func (r *Registry) Get(name string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[name]
	return node, ok
}

// Self returns the local node's registry entry.
func (r *Registry) Self() (Node, bool) {
	return r.Get(r.cfg.SelfName)
}

// SelfName returns the configured local node name.
func (r *Registry) SelfName() string {
	return r.cfg.SelfName
}

// List returns all known nodes ordered by first-seen time.
func (r *Registry) List() []Node {
	r.mu.RLock()
	nodes := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	r.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].FirstSeenAt.Equal(nodes[j].FirstSeenAt) {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].FirstSeenAt.Before(nodes[j].FirstSeenAt)
	})
	return nodes
}

// ListEligible returns nodes that are both active and approved, ordered by
// first-seen time.
func (r *Registry) ListEligible() []Node {
	all := r.List()
	eligible := all[:0:0]
	for _, node := range all {
		if node.Active && node.Approved {
			eligible = append(eligible, node)
		}
	}
	return eligible
}

func fromRow(row db.Node) Node {
	node := Node{
		Name:        row.Name,
		IPAddress:   row.IPAddress,
		APIEndpoint: row.APIEndpoint,
		Tier:        config.NodeTier(row.Tier),
		Active:      row.Active,
		Approved:    row.Approved,
		FirstSeenAt: row.CreatedAt,
	}
	if row.LastActiveAt.Valid {
		node.LastActiveAt = row.LastActiveAt.Time
	}
	return node
}

// outboundAddress discovers the externally-visible IP of this host by opening
// a UDP socket; no packets are sent.
func outboundAddress() (string, error) {
	conn, err := net.Dial("udp", "1.1.1.1:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
