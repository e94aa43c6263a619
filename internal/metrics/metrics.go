// Package metrics holds the Prometheus instruments for graph builds.
package metrics

import (
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Registry holds all metrics for the application
type Registry struct {
	// Build Metrics
	BuildsTotal       *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	CoalescedTotal    prometheus.Counter
	CacheLookupsTotal *prometheus.CounterVec
	BuildsInFlight    prometheus.Gauge

	// Source Metrics
	FilesWalked        prometheus.Histogram
	ImportEdges        prometheus.Histogram
	ParseDegradedTotal prometheus.Counter

	// Graph Metrics
	GraphNodes *prometheus.GaugeVec
	GraphLinks *prometheus.GaugeVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initBuildMetrics()
	r.initSourceMetrics()
	r.initGraphMetrics()

	return r
}

// GetPrometheusRegistry exposes the underlying registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// WriteText writes every metric family in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func (r *Registry) initBuildMetrics() {
	r.BuildsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoorbit_builds_total",
			Help: "Total number of graph builds",
		},
		[]string{"status"}, // success, error
	)

	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repoorbit_stage_duration_seconds",
			Help:    "Duration of build stages in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"stage"}, // fetch, walk, resolve, reduce
	)

	r.CoalescedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "repoorbit_coalesced_requests_total",
			Help: "Build requests that joined an in-flight build for the same key",
		},
	)

	r.CacheLookupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoorbit_cache_lookups_total",
			Help: "Analysis cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	r.BuildsInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "repoorbit_builds_in_flight",
			Help: "Number of analyses currently running",
		},
	)
}

func (r *Registry) initSourceMetrics() {
	r.FilesWalked = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "repoorbit_files_walked",
			Help:    "Candidate source files per build",
			Buckets: prometheus.ExponentialBuckets(10, 4, 7),
		},
	)

	r.ImportEdges = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "repoorbit_import_edges",
			Help:    "Resolved import edges per build",
			Buckets: prometheus.ExponentialBuckets(10, 4, 7),
		},
	)

	r.ParseDegradedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "repoorbit_parse_degraded_total",
			Help: "Files whose structured parse failed and fell back to pattern scans",
		},
	)
}

func (r *Registry) initGraphMetrics() {
	r.GraphNodes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repoorbit_graph_nodes",
			Help: "Node count of the last reduced graph",
		},
		[]string{"view"}, // directory, file
	)

	r.GraphLinks = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repoorbit_graph_links",
			Help: "Link count of the last reduced graph",
		},
		[]string{"view"},
	)
}
