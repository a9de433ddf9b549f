package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCycleMetrics() {
	r.CycleDetectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "procline_cycle_detections_total",
			Help: "Total number of cycle detection passes",
		},
		[]string{"status"},
	)

	r.CycleGroups = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "procline_cycle_groups",
			Help: "Number of multi-step groups found by the last detection",
		},
	)

	r.CycleLargestGroup = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "procline_cycle_largest_group",
			Help: "Size of the largest strongly connected component in the last detection",
		},
	)

	r.CycleSingletons = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "procline_cycle_singletons",
			Help: "Number of single-step components in the last detection",
		},
	)
}

func (r *Registry) initNetworkMetrics() {
	r.NetworkNodes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "procline_network_nodes",
			Help: "Number of nodes in the network by kind",
		},
		[]string{"kind"},
	)
}
