// Package selector ranks eligible fleet nodes for an incoming fetch request.
// It scores candidates with live fleet stats and degrades to a cheap
// heuristic when telemetry is unavailable: telemetry absence is never a
// routing failure.
package selector

import (
	"context"
	"time"

	"github.com/asimaranov/telestory-backend/internal/fleet/config"
	"github.com/asimaranov/telestory-backend/internal/fleet/registry"
	"github.com/asimaranov/telestory-backend/internal/shared/errors"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
	"github.com/asimaranov/telestory-backend/pkg/api"
)

// fleetSnapshotter supplies the fleet-wide stats used for scoring.
type fleetSnapshotter interface {
	SnapshotFleet(ctx context.Context) api.FleetStatsResponse
}

// Selector picks the best node for a request.
type Selector struct {
	weights  config.ScoringWeights
	registry *registry.Registry
	stats    fleetSnapshotter
	logger   *logger.Logger
}

// NewSelector creates a selector with the given scoring weights.
func NewSelector(weights config.ScoringWeights, reg *registry.Registry, stats fleetSnapshotter, log *logger.Logger) *Selector {
	return &Selector{
		weights:  weights,
		registry: reg,
		stats:    stats,
		logger:   log.WithComponent("selector"),
	}
}

// SelectBest returns the best currently-usable node, or ErrNoNodeAvailable
// when no node qualifies. Premium requests may land on any tier; the premium
// flag only biases scoring toward premium nodes.
func (s *Selector) SelectBest(ctx context.Context, wantPremium bool) (registry.Node, error) {
	var candidates []registry.Node
	for _, node := range s.registry.ListEligible() {
		if node.APIEndpoint == "" {
			continue
		}
		candidates = append(candidates, node)
	}

	if len(candidates) == 0 {
		return registry.Node{}, errors.ErrNoNodeAvailable
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	fleet := s.stats.SnapshotFleet(ctx)
	snapshots := make(map[string]api.NodeStatsSnapshot, len(fleet.Nodes))
	for _, snapshot := range fleet.Nodes {
		if snapshot.CollectionSuccess {
			snapshots[snapshot.Node] = snapshot
		}
	}

	// Score candidates that have stats and at least one usable account.
	// Candidates are in first-seen order, so keeping only strictly better
	// scores implements the tie-break.
	best := registry.Node{}
	bestScore := -1
	for _, node := range candidates {
		snapshot, ok := snapshots[node.Name]
		if !ok || snapshot.Accounts.Active == 0 {
			continue
		}
		score := s.score(node, snapshot, wantPremium)
		s.logger.Debug("scored node", "node", node.Name, "score", score, "premium_wanted", wantPremium)
		if score > bestScore {
			best = node
			bestScore = score
		}
	}
	if bestScore >= 0 {
		return best, nil
	}

	// No candidate had stats or usable accounts; fall back to the stats-free
	// heuristic instead of failing.
	s.logger.Debug("falling back to stats-free selection", "candidates", len(candidates))
	return s.heuristic(candidates, wantPremium), nil
}

// score implements the documented ranking formula, floored at zero.
func (s *Selector) score(node registry.Node, snapshot api.NodeStatsSnapshot, wantPremium bool) int {
	w := s.weights

	score := w.ActiveAccount * int(snapshot.Accounts.Active)

	if wantPremium && node.IsPremium() {
		score += w.PremiumBonus
	}

	loadPenalty := w.PerRequestHour * int(snapshot.Requests.LastHour)
	if loadPenalty > w.RequestCap {
		loadPenalty = w.RequestCap
	}
	score -= loadPenalty

	switch {
	case snapshot.System.MemUsedPercent > 80:
		score -= w.MemPenaltyHigh
	case snapshot.System.MemUsedPercent > 60:
		score -= w.MemPenaltyMid
	}

	switch {
	case snapshot.System.DiskUsedPercent > 90:
		score -= w.DiskPenaltyHigh
	case snapshot.System.DiskUsedPercent > 75:
		score -= w.DiskPenaltyMid
	}

	if !node.LastActiveAt.IsZero() && snapshot.CollectedAt.Sub(node.LastActiveAt) < time.Hour {
		score += w.RecentSeenBonus
	}

	if score < 0 {
		score = 0
	}
	return score
}

// heuristic picks without telemetry: a premium node when one is wanted and
// available, otherwise the stalest node by last-seen time to spread load.
func (s *Selector) heuristic(candidates []registry.Node, wantPremium bool) registry.Node {
	pool := candidates
	if wantPremium {
		var premium []registry.Node
		for _, node := range candidates {
			if node.IsPremium() {
				premium = append(premium, node)
			}
		}
		if len(premium) > 0 {
			pool = premium
		}
	}

	stalest := pool[0]
	for _, node := range pool[1:] {
		if node.LastActiveAt.Before(stalest.LastActiveAt) {
			stalest = node
		}
	}
	return stalest
}
