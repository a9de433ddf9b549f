// Package metrics exposes prometheus instruments for cycle detection and
// flow propagation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Propagation Metrics
	PropagationRunsTotal     *prometheus.CounterVec
	PropagationDuration      prometheus.Histogram
	PropagationNodesAssigned prometheus.Histogram
	PropagationWarningsTotal *prometheus.CounterVec

	// Group Solve Metrics
	GroupSolvesTotal   *prometheus.CounterVec
	GroupSolveResidual prometheus.Histogram
	GroupSolveSize     prometheus.Histogram

	// Cycle Detection Metrics
	CycleDetectionsTotal *prometheus.CounterVec
	CycleGroups          prometheus.Gauge
	CycleLargestGroup    prometheus.Gauge
	CycleSingletons      prometheus.Gauge

	// Network Metrics
	NetworkNodes *prometheus.GaugeVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initPropagationMetrics()
	r.initGroupMetrics()
	r.initCycleMetrics()
	r.initNetworkMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
