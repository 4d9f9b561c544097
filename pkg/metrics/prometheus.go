// Package metrics provides Prometheus metrics for the reputation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Run metrics - one computation call end to end
	runsTotal     prometheus.Counter
	runErrors     prometheus.Counter
	stageDuration *prometheus.HistogramVec
	graphNodes    prometheus.Gauge
	graphEdges    prometheus.Gauge

	// Input quality metrics
	edgesDropped   prometheus.Counter
	weightsClamped prometheus.Counter

	// PageRank metrics
	pagerankRuns           prometheus.Counter
	pagerankIterations     prometheus.Histogram
	pagerankNonConvergence prometheus.Counter

	// Adversarial detection metrics
	sybilHighRisk    prometheus.Gauge
	deceptiveFlagged prometheus.Counter
	edgesReweighted  prometheus.Counter

	// Sensitivity audit metrics
	auditsTotal  prometheus.Counter
	auditErrors  prometheus.Counter
	auditLatency prometheus.Histogram
	auditWorkers prometheus.Gauge
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithRegistry sets the Prometheus registerer used for all metrics.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithHistogramBuckets overrides the default histogram buckets.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// Registry returns the registry backing the global manager, for exposition.
func Registry() *prometheus.Registry {
	return customRegistry
}

// NewManager creates a metrics manager and registers all engine metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dotrep",
		subsystem:        "reputation",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Total number of reputation computation runs",
	})

	m.runErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_errors_total",
		Help:      "Total number of runs rejected or failed",
	})

	m.stageDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stage_duration_milliseconds",
			Help:      "Duration of each pipeline stage in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"stage"},
	)

	m.graphNodes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "graph_nodes",
		Help:      "Node count of the most recent snapshot",
	})

	m.graphEdges = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "graph_edges",
		Help:      "Edge count of the most recent snapshot after validation",
	})

	m.edgesDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "edges_dropped_total",
		Help:      "Edges dropped because they reference unknown nodes",
	})

	m.weightsClamped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "edge_weights_clamped_total",
		Help:      "Edge weights clamped into the [0,1] range",
	})

	m.pagerankRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pagerank_runs_total",
		Help:      "Total number of PageRank computations, including audit re-runs",
	})

	m.pagerankIterations = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pagerank_iterations",
		Help:      "Iterations used per PageRank computation",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
	})

	m.pagerankNonConvergence = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pagerank_nonconvergence_total",
		Help:      "PageRank runs that hit max iterations before tolerance",
	})

	m.sybilHighRisk = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sybil_high_risk_nodes",
		Help:      "Nodes above the Sybil probability threshold in the last run",
	})

	m.deceptiveFlagged = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "deceptive_edges_flagged_total",
		Help:      "Edges flagged as likely bad-mouthing or self-promotion",
	})

	m.edgesReweighted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "edges_reweighted_total",
		Help:      "Edges down-weighted by the deceptive edge filter",
	})

	m.auditsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sensitivity_audits_total",
		Help:      "Total number of per-node sensitivity audits",
	})

	m.auditErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sensitivity_audit_errors_total",
		Help:      "Sensitivity audits that failed or were cut off by deadline",
	})

	m.auditLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sensitivity_audit_latency_milliseconds",
		Help:      "Latency of one per-node sensitivity audit in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.auditWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sensitivity_audit_workers",
		Help:      "Configured audit worker pool size",
	})
}

// Package-level helpers mirroring the manager, used throughout the engine.

func RecordRun()                      { globalManager.runsTotal.Inc() }
func RecordRunError()                 { globalManager.runErrors.Inc() }
func RecordStageDuration(stage string, ms float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(ms)
}
func UpdateGraphSize(nodes, edges int) {
	globalManager.graphNodes.Set(float64(nodes))
	globalManager.graphEdges.Set(float64(edges))
}
func RecordEdgeDropped()              { globalManager.edgesDropped.Inc() }
func RecordWeightClamped()            { globalManager.weightsClamped.Inc() }
func RecordPageRankRun()              { globalManager.pagerankRuns.Inc() }
func RecordPageRankIterations(n int)  { globalManager.pagerankIterations.Observe(float64(n)) }
func RecordPageRankNonConvergence()   { globalManager.pagerankNonConvergence.Inc() }
func UpdateSybilHighRisk(n int)       { globalManager.sybilHighRisk.Set(float64(n)) }
func RecordDeceptiveEdgeFlagged()     { globalManager.deceptiveFlagged.Inc() }
func RecordEdgeReweighted()           { globalManager.edgesReweighted.Inc() }
func RecordAudit()                    { globalManager.auditsTotal.Inc() }
func RecordAuditError()               { globalManager.auditErrors.Inc() }
func RecordAuditLatency(ms float64)   { globalManager.auditLatency.Observe(ms) }
func UpdateAuditWorkers(n int)        { globalManager.auditWorkers.Set(float64(n)) }
