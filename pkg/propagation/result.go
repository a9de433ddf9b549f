package propagation

import (
	"sort"
	"time"

	"github.com/dd0wney/procline/pkg/network"
	"github.com/dd0wney/procline/pkg/recipe"
)

// Warning kinds.
const (
	WarningRateConflict    = "rate_conflict"
	WarningResidual        = "residual"
	WarningUnderdetermined = "underdetermined"
)

// Warning is a non-fatal problem found during a run.
type Warning struct {
	Kind  string
	Node  network.NodeID
	Group network.GroupID
	Err   error
}

func (w Warning) String() string {
	return w.Kind + ": " + w.Err.Error()
}

// GroupSolve describes one least-squares solve performed during a run.
type GroupSolve struct {
	Group     network.GroupID
	Pinned    string
	Residual  float64
	Rank      int
	Variables int
}

// Result is the outcome of one propagation run. It is detached from the
// network until Apply is called.
type Result struct {
	RunID     string
	Start     network.NodeID
	StartRate float64

	Rates    map[network.NodeID]float64
	Flows    map[network.NodeID]map[recipe.Item]float64
	NetFlows map[recipe.Item]float64
	// Order lists steps and buffers in the order they first received a rate or flow.
	Order    []network.NodeID
	Solves   []GroupSolve
	Warnings []Warning
	Duration time.Duration
}

func newResult(id string, start network.NodeID, rate float64) *Result {
	return &Result{
		RunID:     id,
		Start:     start,
		StartRate: rate,
		Rates:     make(map[network.NodeID]float64),
		Flows:     make(map[network.NodeID]map[recipe.Item]float64),
		NetFlows:  make(map[recipe.Item]float64),
	}
}

func (r *Result) addFlow(id network.NodeID, item recipe.Item, amount float64) {
	flows, ok := r.Flows[id]
	if !ok {
		flows = make(map[recipe.Item]float64)
		r.Flows[id] = flows
		r.Order = append(r.Order, id)
	}
	flows[item] += amount
}

// finish sums buffer flows into NetFlows.
func (r *Result) finish() {
	for _, id := range r.bufferIDs() {
		for item, flow := range r.Flows[id] {
			r.NetFlows[item] += flow
		}
	}
}

func (r *Result) bufferIDs() []network.NodeID {
	ids := make([]network.NodeID, 0, len(r.Flows))
	for id := range r.Flows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Rate returns the rate assigned to a step.
func (r *Result) Rate(id network.NodeID) (float64, bool) {
	rate, ok := r.Rates[id]
	return rate, ok
}

// Flow returns the net flow of item into buffer id.
func (r *Result) Flow(id network.NodeID, item recipe.Item) float64 {
	return r.Flows[id][item]
}

// Apply writes the result onto the nodes of net. Every buffer flow is reset
// first; steps the run did not reach keep their previous rate.
func (r *Result) Apply(net *network.Network) error {
	for id := range r.Rates {
		if _, err := net.Node(id); err != nil {
			return err
		}
	}
	for id := range r.Flows {
		if _, err := net.Node(id); err != nil {
			return err
		}
	}

	for _, buf := range net.Buffers() {
		buf.Flow = make(map[recipe.Item]float64)
	}
	for id, rate := range r.Rates {
		node, _ := net.Node(id)
		node.Rate = rate
	}
	for id, flows := range r.Flows {
		node, _ := net.Node(id)
		for item, flow := range flows {
			node.Flow[item] = flow
		}
	}
	return nil
}
