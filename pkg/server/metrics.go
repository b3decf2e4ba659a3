package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the server-side counters. A nil *Metrics is a valid no-op
// receiver so tests can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	mutations         *prometheus.CounterVec
	lockConflicts     prometheus.Counter
	aiActions         prometheus.Counter
	aiRetries         prometheus.Counter
	snapshotHits      prometheus.Counter
	snapshotMisses    prometheus.Counter
	broadcastsDropped prometheus.Counter
}

// NewMetrics builds and registers the counter set on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nommie",
		Name:      "mutations_total",
		Help:      "Committed game mutations by outcome.",
	}, []string{"outcome"})
	m.lockConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nommie",
		Name:      "optimistic_lock_conflicts_total",
		Help:      "Mutations rejected by the version compare-and-set.",
	})
	m.aiActions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nommie",
		Name:      "ai_actions_total",
		Help:      "Domain actions applied by AI seats.",
	})
	m.aiRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nommie",
		Name:      "ai_action_retries_total",
		Help:      "AI decisions retried after a transient failure.",
	})
	m.snapshotHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nommie",
		Name:      "snapshot_cache_hits_total",
		Help:      "Snapshot reads served from the (game, version) cache.",
	})
	m.snapshotMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nommie",
		Name:      "snapshot_cache_misses_total",
		Help:      "Snapshot reads that built the shared parts.",
	})
	m.broadcastsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nommie",
		Name:      "broadcasts_dropped_total",
		Help:      "Events dropped because the broadcast queue was full.",
	})
	m.registry.MustRegister(m.mutations, m.lockConflicts, m.aiActions,
		m.aiRetries, m.snapshotHits, m.snapshotMisses, m.broadcastsDropped)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) mutationCommitted() {
	if m != nil {
		m.mutations.WithLabelValues("committed").Inc()
	}
}

func (m *Metrics) mutationFailed() {
	if m != nil {
		m.mutations.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) lockConflict() {
	if m != nil {
		m.lockConflicts.Inc()
	}
}

func (m *Metrics) aiActionApplied() {
	if m != nil {
		m.aiActions.Inc()
	}
}

func (m *Metrics) aiActionRetried() {
	if m != nil {
		m.aiRetries.Inc()
	}
}

func (m *Metrics) snapshotHit() {
	if m != nil {
		m.snapshotHits.Inc()
	}
}

func (m *Metrics) snapshotMiss() {
	if m != nil {
		m.snapshotMisses.Inc()
	}
}

func (m *Metrics) broadcastDropped() {
	if m != nil {
		m.broadcastsDropped.Inc()
	}
}
