package propagation

import (
	"math"

	"github.com/google/uuid"

	"github.com/dd0wney/procline/pkg/group"
	"github.com/dd0wney/procline/pkg/logging"
	"github.com/dd0wney/procline/pkg/network"
	"github.com/dd0wney/procline/pkg/recipe"
)

type taskKind uint8

const (
	// taskRate fixes the rate of a step.
	taskRate taskKind = iota
	// taskTransfer moves amount of item through the dir hatch of node.
	taskTransfer
)

// task is one unit of the work-list. cause is the neighbour the value came
// from, 0 for the starting step. balanced marks values handed out by a group
// solve: the dir/item hatch of node is already settled and is not fed again.
type task struct {
	kind     taskKind
	node     network.NodeID
	cause    network.NodeID
	value    float64
	dir      network.Dir
	item     recipe.Item
	balanced bool
}

// run is the state of one PropagateFrom call.
type run struct {
	e      *Engine
	net    *network.Network
	logger logging.Logger
	res    *Result
	stack  []task

	systems   map[network.GroupID]*group.System
	solutions map[network.GroupID]*group.Solution
}

func newRun(e *Engine, start network.NodeID, rate float64) *run {
	id := uuid.New().String()
	return &run{
		e:         e,
		net:       e.net,
		logger:    e.logger.With(logging.RunID(id)),
		res:       newResult(id, start, rate),
		stack:     []task{{kind: taskRate, node: start, value: rate}},
		systems:   make(map[network.GroupID]*group.System),
		solutions: make(map[network.GroupID]*group.Solution),
	}
}

func (r *run) execute() error {
	for len(r.stack) > 0 {
		t := r.stack[len(r.stack)-1]
		r.stack = r.stack[:len(r.stack)-1]

		node, err := r.net.Node(t.node)
		if err != nil {
			return err
		}

		switch t.kind {
		case taskRate:
			err = r.rate(node, t)
		case taskTransfer:
			err = r.transfer(node, t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// push queues tasks so that they are processed in the given order.
func (r *run) push(tasks ...task) {
	for i := len(tasks) - 1; i >= 0; i-- {
		r.stack = append(r.stack, tasks[i])
	}
}

func (r *run) rate(node *network.Node, t task) error {
	if node.Grouped() {
		return r.solveGroup(node.Group, group.RateVar(node.ID), t.value)
	}
	if !r.assign(node.ID, t.value) {
		return nil
	}
	r.logger.Debug("rate assigned", logging.NodeID(uint64(node.ID)), logging.Node(node.Name), logging.Rate(t.value))

	rec := node.Recipe
	var next []task
	for _, item := range rec.ConsumedItems() {
		sources := node.Pull[item]
		if len(sources) == 0 {
			return network.MissingConnectionError("propagate", node.ID, item, network.DirPull.String())
		}
		// only the first source is fed
		if sources[0] == t.cause || t.settled(network.DirPull, item) {
			continue
		}
		next = append(next, task{
			kind: taskTransfer, node: sources[0], cause: node.ID,
			value: t.value * rec.InRate(item), dir: network.DirPush, item: item,
		})
	}
	for _, item := range rec.ProducedItems() {
		sinks := node.Push[item]
		if len(sinks) == 0 {
			return network.MissingConnectionError("propagate", node.ID, item, network.DirPush.String())
		}
		if sinks[0] == t.cause || t.settled(network.DirPush, item) {
			continue
		}
		next = append(next, task{
			kind: taskTransfer, node: sinks[0], cause: node.ID,
			value: t.value * rec.OutRate(item), dir: network.DirPull, item: item,
		})
	}
	r.push(next...)
	return nil
}

func (t task) settled(dir network.Dir, item recipe.Item) bool {
	return t.balanced && t.dir == dir && t.item == item
}

func (r *run) transfer(node *network.Node, t task) error {
	switch node.Kind {
	case network.KindBuffer:
		amount := t.value
		if t.dir == network.DirPush {
			amount = -amount
		}
		r.res.addFlow(node.ID, t.item, amount)
		r.logger.Debug("buffer flow", logging.Node(node.Name), logging.Item(string(t.item)), logging.Flow(amount))
		return nil

	case network.KindStep:
		if node.Grouped() {
			border := group.BorderVar(group.Hatch{Node: t.cause, Dir: t.dir.Opposite(), Item: t.item})
			value := t.value
			if border.Hatch.Dir == network.DirPull {
				value = -value
			}
			return r.solveGroup(node.Group, border, value)
		}
		var rate float64
		if t.dir == network.DirPull {
			rate = t.value / node.Recipe.InRate(t.item)
		} else {
			rate = t.value / node.Recipe.OutRate(t.item)
		}
		r.push(task{kind: taskRate, node: node.ID, cause: t.cause, value: rate, dir: t.dir, item: t.item, balanced: t.balanced})
		return nil

	default:
		return network.NewError("propagate").Node(node.ID).Cause(network.ErrInvalidConnection).
			Context("unknown node kind %s", node.Kind).Err()
	}
}

// assign records the rate of a step. It returns false if the step already
// had one, warning when the two disagree.
func (r *run) assign(id network.NodeID, rate float64) bool {
	prev, ok := r.res.Rates[id]
	if !ok {
		r.res.Rates[id] = rate
		r.res.Order = append(r.res.Order, id)
		return true
	}
	if !r.close(prev, rate) {
		r.warn(Warning{
			Kind:  WarningRateConflict,
			Node:  id,
			Group: network.NoGroup,
			Err: network.NewError("propagate").Node(id).Cause(network.ErrNumericalInconsistency).
				Context("rate %g reached again as %g", prev, rate).Err(),
		})
	}
	return false
}

func (r *run) close(a, b float64) bool {
	return math.Abs(a-b) <= r.e.cfg.ResidualTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func (r *run) system(gid network.GroupID) (*group.System, error) {
	if sys, ok := r.systems[gid]; ok {
		return sys, nil
	}
	sys, err := group.Build(r.net, gid)
	if err != nil {
		return nil, err
	}
	r.systems[gid] = sys
	return sys, nil
}

// solveGroup pins cause to value inside group gid, assigns every member rate
// and queues a transfer for every border hatch except the pinned one.
func (r *run) solveGroup(gid network.GroupID, cause group.Variable, value float64) error {
	if prev, ok := r.solutions[gid]; ok {
		if got, known := prev.Values[cause]; !known || !r.close(got, value) {
			r.warn(Warning{
				Kind:  WarningRateConflict,
				Node:  cause.Hatch.Node,
				Group: gid,
				Err: network.NewError("propagate").Group(gid).Cause(network.ErrNumericalInconsistency).
					Context("%s reached again as %g, solved as %g", cause, value, got).Err(),
			})
		}
		return nil
	}

	sys, err := r.system(gid)
	if err != nil {
		return err
	}
	sol, err := sys.Solve(cause, value, r.e.groupOptions())
	if r.e.metrics != nil {
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case sol.Inconsistent:
			status = "inconsistent"
		}
		var residual float64
		if sol != nil {
			residual = sol.Residual
		}
		r.e.metrics.RecordGroupSolve(status, len(sys.Vars), residual)
	}
	if err != nil {
		return err
	}
	r.solutions[gid] = sol
	r.res.Solves = append(r.res.Solves, GroupSolve{
		Group:     gid,
		Pinned:    cause.String(),
		Residual:  sol.Residual,
		Rank:      sol.Rank,
		Variables: len(sys.Vars),
	})
	r.logger.Debug("group solved", logging.GroupID(int(gid)), logging.Residual(sol.Residual), logging.Int("rank", sol.Rank))

	if sol.Inconsistent {
		r.warn(Warning{
			Kind:  WarningResidual,
			Node:  cause.Hatch.Node,
			Group: gid,
			Err: network.NewError("propagate").Group(gid).Cause(network.ErrNumericalInconsistency).
				Context("residual %.3g", sol.Residual).Err(),
		})
	}
	if sol.Underdetermined {
		r.warn(Warning{
			Kind:  WarningUnderdetermined,
			Node:  cause.Hatch.Node,
			Group: gid,
			Err: network.NewError("propagate").Group(gid).Cause(network.ErrNumericalInconsistency).
				Context("rank %d below %d variables; minimum-norm split used", sol.Rank, len(sys.Vars)).Err(),
		})
	}

	g, err := r.net.Group(gid)
	if err != nil {
		return err
	}
	for _, id := range g.Steps {
		r.assign(id, sol.Rate(id))
	}

	var next []task
	for _, v := range sys.Vars {
		if !v.Border || v == cause {
			continue
		}
		amount := sol.Values[v]
		if v.Hatch.Dir == network.DirPull {
			amount = -amount
		}
		next = append(next, task{
			kind:     taskTransfer,
			node:     v.Hatch.Node,
			cause:    sys.Causes[v.Hatch.Node],
			value:    amount,
			dir:      v.Hatch.Dir,
			item:     v.Hatch.Item,
			balanced: true,
		})
	}
	r.push(next...)
	return nil
}

func (r *run) warn(w Warning) {
	r.res.Warnings = append(r.res.Warnings, w)
	r.logger.Warn("propagation warning", logging.String("kind", w.Kind), logging.Error(w.Err))
	if r.e.metrics != nil {
		r.e.metrics.RecordWarning(w.Kind)
	}
}
