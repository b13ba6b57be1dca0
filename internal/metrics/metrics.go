// Package metrics owns the Prometheus instruments for the scoring pipeline.
// Emission failures never propagate to callers; instruments are plain
// counters and histograms registered once on construction.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline instruments. Construct one per process and
// pass it down; tests use NewWithRegistry with a throwaway registry.
type Metrics struct {
	CrossTenantAttempts  *prometheus.CounterVec
	EventsAccepted       *prometheus.CounterVec
	EventsRejected       *prometheus.CounterVec
	DuplicateSubmissions prometheus.Counter
	StandingsDuration    prometheus.Histogram
	SnapshotDuration     prometheus.Histogram
	BroadcastDeliveries  *prometheus.CounterVec
}

// New registers the instruments on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the instruments on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CrossTenantAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorekeeper_cross_tenant_access_attempts_total",
			Help: "Tenant isolation violations detected at the data-access boundary.",
		}, []string{"tenant_id"}),
		EventsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorekeeper_events_accepted_total",
			Help: "Scoring events accepted into the event store.",
		}, []string{"event_type"}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorekeeper_events_rejected_total",
			Help: "Scoring events rejected before or during projection.",
		}, []string{"event_type", "code"}),
		DuplicateSubmissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "scorekeeper_duplicate_submissions_total",
			Help: "Submissions short-circuited by an idempotency key match.",
		}),
		StandingsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorekeeper_standings_recalculation_seconds",
			Help:    "Wall time of full standings recomputation per season.",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorekeeper_snapshot_generation_seconds",
			Help:    "Wall time of snapshot generation.",
			Buckets: []float64{.005, .01, .025, .05, .1, .2, .5, 1},
		}),
		BroadcastDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorekeeper_broadcast_deliveries_total",
			Help: "Per-connection snapshot delivery outcomes.",
		}, []string{"outcome"}),
	}
}
