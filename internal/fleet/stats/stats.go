// Package stats produces point-in-time operational snapshots: per-node local
// collection and master-side fleet-wide aggregation with per-node failure
// isolation.
package stats

import (
	"context"
	"strings"
	"time"

	"github.com/asimaranov/telestory-backend/internal/fleet/config"
	"github.com/asimaranov/telestory-backend/internal/fleet/db"
	"github.com/asimaranov/telestory-backend/internal/fleet/nodeclient"
	"github.com/asimaranov/telestory-backend/internal/fleet/registry"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
	"github.com/asimaranov/telestory-backend/pkg/api"
)

// Aggregator collects node and fleet stats snapshots.
type Aggregator struct {
	selfName      string
	selfTier      config.NodeTier
	store         db.Store
	registry      *registry.Registry
	client        *nodeclient.Client
	system        *systemCollector
	logger        *logger.Logger
	remoteTimeout time.Duration
}

// NewAggregator creates a stats aggregator for the local node.
func NewAggregator(cfg config.StatsConfig, selfName string, selfTier config.NodeTier, store db.Store, reg *registry.Registry, client *nodeclient.Client, log *logger.Logger) *Aggregator {
	remoteTimeout := cfg.RemoteTimeout
	if remoteTimeout <= 0 {
		remoteTimeout = 10 * time.Second
	}
	return &Aggregator{
		selfName:      selfName,
		selfTier:      selfTier,
		store:         store,
		registry:      reg,
		client:        client,
		system:        newSystemCollector(cfg.DiskPath),
		logger:        log.WithComponent("stats"),
		remoteTimeout: remoteTimeout,
	}
}

// SnapshotLocal gathers the three sub-reports of this node concurrently.
// A failing sub-report is zeroed and noted in Error; the snapshot itself is
// always produced.
func (a *Aggregator) SnapshotLocal(ctx context.Context) api.NodeStatsSnapshot {
	snapshot := api.NodeStatsSnapshot{
		Node:              a.selfName,
		Tier:              string(a.selfTier),
		CollectionSuccess: true,
		CollectedAt:       time.Now().UTC(),
	}

	var (
		accounts api.AccountsStats
		requests api.RequestStats
		system   api.SystemStats
	)

	results := Settle(ctx,
		func(ctx context.Context) error {
			collected, err := a.collectAccounts(ctx)
			if err != nil {
				return err
			}
			accounts = collected
			return nil
		},
		func(ctx context.Context) error {
			collected, err := a.collectRequests(ctx)
			if err != nil {
				return err
			}
			requests = collected
			return nil
		},
		func(ctx context.Context) error {
			collected, err := a.system.Collect()
			if err != nil {
				return err
			}
			system = collected
			return nil
		},
	)

	var diagnostics []string
	for _, err := range results {
		if err != nil {
			diagnostics = append(diagnostics, err.Error())
		}
	}
	if len(diagnostics) > 0 {
		snapshot.CollectionSuccess = false
		snapshot.Error = strings.Join(diagnostics, "; ")
		a.logger.Warn("partial stats collection", "node", a.selfName, "error", snapshot.Error)
	}

	snapshot.Accounts = accounts
	snapshot.Requests = requests
	snapshot.System = system
	return snapshot
}

func (a *Aggregator) collectAccounts(ctx context.Context) (api.AccountsStats, error) {
	rows, err := a.store.ListAccountsByNode(ctx, a.selfName)
	if err != nil {
		return api.AccountsStats{}, err
	}

	var stats api.AccountsStats
	stats.Total = int64(len(rows))
	for _, row := range rows {
		if row.Active {
			stats.Active++
		} else {
			stats.Inactive++
		}
	}

	stats.Banned, err = a.store.CountBannedAccountsByNode(ctx, a.selfName)
	if err != nil {
		return api.AccountsStats{}, err
	}
	return stats, nil
}

func (a *Aggregator) collectRequests(ctx context.Context) (api.RequestStats, error) {
	now := time.Now().UTC()

	var stats api.RequestStats
	windows := []struct {
		since time.Time
		dst   *int64
	}{
		{now.Add(-time.Hour), &stats.LastHour},
		{now.Add(-24 * time.Hour), &stats.LastDay},
		{now.Add(-7 * 24 * time.Hour), &stats.LastWeek},
		{now.Add(-30 * 24 * time.Hour), &stats.LastMonth},
	}

	for _, w := range windows {
		count, err := a.store.CountRequestsSince(ctx, db.CountRequestsSinceParams{
			NodeID: a.selfName,
			Since:  w.since,
		})
		if err != nil {
			return api.RequestStats{}, err
		}
		*w.dst = count
	}
	return stats, nil
}

// SnapshotFleet obtains a snapshot from every registered node: the local path
// for self, a remote fetch for others. A failed remote fetch yields a zeroed
// entry with CollectionSuccess=false and demotes the node in the registry;
// it never aborts the fan-out. The summary covers only nodes that returned
// at least a partial snapshot.
func (a *Aggregator) SnapshotFleet(ctx context.Context) api.FleetStatsResponse {
	nodes := a.registry.List()

	snapshots := make([]api.NodeStatsSnapshot, len(nodes))
	reported := make([]bool, len(nodes))

	ops := make([]func(context.Context) error, len(nodes))
	for i, node := range nodes {
		i, node := i, node
		ops[i] = func(ctx context.Context) error {
			if node.Name == a.selfName {
				snapshots[i] = a.SnapshotLocal(ctx)
				reported[i] = true
				return nil
			}

			fetchCtx, cancel := context.WithTimeout(ctx, a.remoteTimeout)
			defer cancel()

			remote, err := a.client.NodeStats(fetchCtx, node.Name, node.APIEndpoint)
			if err != nil {
				a.logger.Warn("failed to fetch node stats",
					"node", node.Name,
					"error", err,
				)
				snapshots[i] = api.NodeStatsSnapshot{
					Node:              node.Name,
					Tier:              string(node.Tier),
					CollectionSuccess: false,
					Error:             err.Error(),
					CollectedAt:       time.Now().UTC(),
				}
				if derr := a.registry.MarkUnreachable(ctx, node.Name); derr != nil {
					a.logger.ErrorCtx(ctx, "failed to demote unreachable node", derr, "node", node.Name)
				}
				return nil
			}

			snapshots[i] = *remote
			reported[i] = true
			return nil
		}
	}
	Settle(ctx, ops...)

	var summary api.FleetSummary
	summary.NodesTotal = len(nodes)
	for i, snapshot := range snapshots {
		if !reported[i] {
			continue
		}
		summary.NodesReporting++
		summary.AccountsTotal += snapshot.Accounts.Total
		summary.AccountsActive += snapshot.Accounts.Active
		summary.RequestsLastHour += snapshot.Requests.LastHour
		summary.DiskUsedBytes += snapshot.System.DiskUsedBytes
	}

	return api.FleetStatsResponse{Nodes: snapshots, Summary: summary}
}
