// Package metrics exposes Prometheus instrumentation for the fleet layer.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/asimaranov/telestory-backend/internal/fleet/events"
)

// Metrics holds the fleet-level Prometheus collectors.
type Metrics struct {
	RoutingOutcomes  *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	FetchErrors      *prometheus.CounterVec
	TransfersTotal   *prometheus.CounterVec
	BansRecorded     prometheus.Counter
	AccountsInPool   prometheus.Gauge
	NodesUnreachable prometheus.Counter
}

// New registers the fleet collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RoutingOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet",
			Name:      "routing_outcomes_total",
			Help:      "Routed fetches by route log tag.",
		}, []string{"route_log"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleet",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of locally executed fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet",
			Name:      "fetch_errors_total",
			Help:      "Failed fetches by error kind.",
		}, []string{"kind"}),
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet",
			Name:      "account_transfers_total",
			Help:      "Account transfers by result.",
		}, []string{"result"}),
		BansRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet",
			Name:      "account_bans_recorded_total",
			Help:      "Newly recorded account bans.",
		}),
		AccountsInPool: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleet",
			Name:      "accounts_in_pool",
			Help:      "Sessions currently in the local rotation.",
		}),
		NodesUnreachable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet",
			Name:      "nodes_marked_unreachable_total",
			Help:      "Times a node was demoted after a failed remote call.",
		}),
	}
}

// Observe subscribes the collectors to the fleet event bus so lifecycle
// events turn into counters without coupling publishers to Prometheus.
func (m *Metrics) Observe(bus *events.Bus) {
	bus.Subscribe(events.TypeBanRecorded, func(ctx context.Context, evt events.Event) error {
		m.BansRecorded.Inc()
		return nil
	})
	bus.Subscribe(events.TypeTransferCompleted, func(ctx context.Context, evt events.Event) error {
		m.TransfersTotal.WithLabelValues("completed").Inc()
		return nil
	})
	bus.Subscribe(events.TypeTransferFailed, func(ctx context.Context, evt events.Event) error {
		m.TransfersTotal.WithLabelValues("failed").Inc()
		return nil
	})
	bus.Subscribe(events.TypeNodeUnreachable, func(ctx context.Context, evt events.Event) error {
		m.NodesUnreachable.Inc()
		return nil
	})
}
