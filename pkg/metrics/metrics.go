package metrics

import (
	"time"
)

// RecordPropagation records one propagation run.
func (r *Registry) RecordPropagation(status string, duration time.Duration, nodesAssigned int) {
	r.PropagationRunsTotal.WithLabelValues(status).Inc()
	r.PropagationDuration.Observe(duration.Seconds())
	if status == "success" {
		r.PropagationNodesAssigned.Observe(float64(nodesAssigned))
	}
}

// RecordWarning counts a non-fatal propagation warning.
func (r *Registry) RecordWarning(kind string) {
	r.PropagationWarningsTotal.WithLabelValues(kind).Inc()
}

// RecordGroupSolve records one least-squares solve of a group.
func (r *Registry) RecordGroupSolve(status string, variables int, residual float64) {
	r.GroupSolvesTotal.WithLabelValues(status).Inc()
	r.GroupSolveSize.Observe(float64(variables))
	if status != "error" {
		r.GroupSolveResidual.Observe(residual)
	}
}

// RecordCycleDetection records the outcome of a detection pass.
func (r *Registry) RecordCycleDetection(groups, largest, singletons int) {
	r.CycleDetectionsTotal.WithLabelValues("success").Inc()
	r.CycleGroups.Set(float64(groups))
	r.CycleLargestGroup.Set(float64(largest))
	r.CycleSingletons.Set(float64(singletons))
}

// RecordCycleDetectionError counts a failed detection pass.
func (r *Registry) RecordCycleDetectionError() {
	r.CycleDetectionsTotal.WithLabelValues("error").Inc()
}

// UpdateNetworkSize sets the node gauges.
func (r *Registry) UpdateNetworkSize(steps, buffers int) {
	r.NetworkNodes.WithLabelValues("step").Set(float64(steps))
	r.NetworkNodes.WithLabelValues("buffer").Set(float64(buffers))
}
