package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPropagationMetrics() {
	r.PropagationRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "procline_propagation_runs_total",
			Help: "Total number of propagation runs",
		},
		[]string{"status"},
	)

	r.PropagationDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "procline_propagation_duration_seconds",
			Help:    "Propagation run duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	r.PropagationNodesAssigned = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "procline_propagation_nodes_assigned",
			Help:    "Number of nodes assigned a rate or flow per run",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
		},
	)

	r.PropagationWarningsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "procline_propagation_warnings_total",
			Help: "Total number of non-fatal propagation warnings",
		},
		[]string{"kind"},
	)
}

func (r *Registry) initGroupMetrics() {
	r.GroupSolvesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "procline_group_solves_total",
			Help: "Total number of group least-squares solves",
		},
		[]string{"status"},
	)

	r.GroupSolveResidual = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "procline_group_solve_residual",
			Help:    "Residual norm of group solves",
			Buckets: []float64{1e-12, 1e-9, 1e-6, 1e-3, 1, 1e3},
		},
	)

	r.GroupSolveSize = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "procline_group_solve_variables",
			Help:    "Number of variables in each group solve",
			Buckets: []float64{2, 4, 8, 16, 32, 64, 128},
		},
	)
}
