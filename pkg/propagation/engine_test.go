package propagation

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/procline/pkg/config"
	"github.com/dd0wney/procline/pkg/logging"
	"github.com/dd0wney/procline/pkg/metrics"
	"github.com/dd0wney/procline/pkg/network"
	"github.com/dd0wney/procline/pkg/recipe"
)

type qty = map[recipe.Item]float64

func addStep(t *testing.T, net *network.Network, name string, in, out qty, duration float64) network.NodeID {
	t.Helper()
	id, err := net.AddStep(name, "assembler", recipe.MustNew(name, in, out, duration, 30))
	require.NoError(t, err)
	return id
}

func newEngine(t *testing.T, net *network.Network, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(logging.NewNopLogger())}, opts...)
	e, err := NewEngine(net, opts...)
	require.NoError(t, err)
	return e
}

func TestPropagateFrom_Chain(t *testing.T) {
	net := network.New()
	src := net.AddBuffer("src")
	a := addStep(t, net, "a", qty{"ore": 1}, qty{"plate": 1}, 1)
	b := addStep(t, net, "b", qty{"plate": 1}, qty{"gear": 1}, 1)
	c := addStep(t, net, "c", qty{"gear": 1}, qty{"part": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(src, a, "ore"))
	require.NoError(t, net.Connect(a, b, "plate"))
	require.NoError(t, net.Connect(b, c, "gear"))
	require.NoError(t, net.Connect(c, sink, "part"))

	res, err := newEngine(t, net).PropagateFrom(a, 2.0)
	require.NoError(t, err)

	assert.Equal(t, 2.0, res.Rates[a])
	assert.Equal(t, 2.0, res.Rates[b])
	assert.Equal(t, 2.0, res.Rates[c])
	assert.Equal(t, -2.0, res.Flow(src, "ore"))
	assert.Equal(t, 2.0, res.Flow(sink, "part"))
	assert.Equal(t, -2.0, res.NetFlows["ore"])
	assert.Equal(t, 2.0, res.NetFlows["part"])
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Solves)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, a, res.Order[0])
	assert.Len(t, res.Order, 5)
}

func TestPropagateFrom_ChainFromMiddle(t *testing.T) {
	net := network.New()
	src := net.AddBuffer("src")
	a := addStep(t, net, "a", qty{"ore": 1}, qty{"plate": 2}, 2)
	b := addStep(t, net, "b", qty{"plate": 3}, qty{"gear": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(src, a, "ore"))
	require.NoError(t, net.Connect(a, b, "plate"))
	require.NoError(t, net.Connect(b, sink, "gear"))

	res, err := newEngine(t, net).PropagateFrom(b, 1)
	require.NoError(t, err)

	// b needs 3 plate/tick; a yields 1 plate/tick at rate 1
	assert.InDelta(t, 3.0, res.Rates[a], 1e-12)
	assert.InDelta(t, -1.5, res.Flow(src, "ore"), 1e-12)
	assert.InDelta(t, 1.0, res.Flow(sink, "gear"), 1e-12)
}

// loop wires src -x-> a -y-> b -x-> a and b -z-> sink, with a: 2x -> y over
// 1 tick and b: y -> x + z over 1 tick.
func loop(t *testing.T) (net *network.Network, src, a, b, sink network.NodeID) {
	t.Helper()
	net = network.New()
	src = net.AddBuffer("src")
	a = addStep(t, net, "a", qty{"x": 2}, qty{"y": 1}, 1)
	b = addStep(t, net, "b", qty{"y": 1}, qty{"x": 1, "z": 1}, 1)
	sink = net.AddBuffer("sink")
	require.NoError(t, net.Connect(src, a, "x"))
	require.NoError(t, net.Connect(a, b, "y"))
	require.NoError(t, net.Connect(b, a, "x"))
	require.NoError(t, net.Connect(b, sink, "z"))
	return
}

func TestPropagateFrom_CycleRoundTrip(t *testing.T) {
	net, src, a, b, sink := loop(t)
	e := newEngine(t, net)

	sccs, err := e.DetectGroups()
	require.NoError(t, err)
	require.Len(t, net.Groups(), 1)
	require.Len(t, sccs, 1)
	assert.Len(t, sccs[0], 2)

	res, err := e.PropagateFrom(a, 1.0)
	require.NoError(t, err)

	require.Len(t, res.Solves, 1)
	assert.Less(t, res.Solves[0].Residual, 1e-9)
	assert.InDelta(t, 1.0, res.Rates[a], 1e-9)
	assert.InDelta(t, 1.0, res.Rates[b], 1e-9)

	// positive means the group hands the item to the buffer
	assert.InDelta(t, -1.0, res.Flow(src, "x"), 1e-9)
	assert.InDelta(t, 1.0, res.Flow(sink, "z"), 1e-9)
	assert.Empty(t, res.Warnings)
}

func TestPropagateFrom_IntoGroup(t *testing.T) {
	net := network.New()
	ore := net.AddBuffer("ore")
	p := addStep(t, net, "p", qty{"ore": 1}, qty{"x": 1}, 1)
	a := addStep(t, net, "a", qty{"x": 2}, qty{"y": 1}, 1)
	b := addStep(t, net, "b", qty{"y": 1}, qty{"x": 1, "z": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(ore, p, "ore"))
	require.NoError(t, net.Connect(p, a, "x"))
	require.NoError(t, net.Connect(a, b, "y"))
	require.NoError(t, net.Connect(b, a, "x"))
	require.NoError(t, net.Connect(b, sink, "z"))

	res, err := newEngine(t, net).PropagateFrom(p, 1)
	require.NoError(t, err)

	assert.True(t, net.GroupsCurrent())
	require.Len(t, res.Solves, 1)
	assert.InDelta(t, 1.0, res.Rates[a], 1e-9)
	assert.InDelta(t, 1.0, res.Rates[b], 1e-9)
	assert.InDelta(t, -1.0, res.Flow(ore, "ore"), 1e-9)
	assert.InDelta(t, 1.0, res.Flow(sink, "z"), 1e-9)
	assert.Empty(t, res.Warnings)
}

func TestPropagateFrom_BorderSteps(t *testing.T) {
	net := network.New()
	ore := net.AddBuffer("ore")
	p := addStep(t, net, "p", qty{"ore": 1}, qty{"x": 1}, 1)
	a := addStep(t, net, "a", qty{"x": 2}, qty{"y": 1}, 1)
	b := addStep(t, net, "b", qty{"y": 1}, qty{"x": 1, "z": 1}, 1)
	q := addStep(t, net, "q", qty{"z": 1}, qty{"out": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(ore, p, "ore"))
	require.NoError(t, net.Connect(p, a, "x"))
	require.NoError(t, net.Connect(a, b, "y"))
	require.NoError(t, net.Connect(b, a, "x"))
	require.NoError(t, net.Connect(b, q, "z"))
	require.NoError(t, net.Connect(q, sink, "out"))

	res, err := newEngine(t, net).PropagateFrom(a, 2)
	require.NoError(t, err)

	require.Len(t, res.Solves, 1)
	assert.InDelta(t, 2.0, res.Rates[a], 1e-9)
	assert.InDelta(t, 2.0, res.Rates[b], 1e-9)
	assert.InDelta(t, 2.0, res.Rates[p], 1e-9)
	assert.InDelta(t, 2.0, res.Rates[q], 1e-9)
	assert.InDelta(t, -2.0, res.Flow(ore, "ore"), 1e-9)
	assert.InDelta(t, 2.0, res.Flow(sink, "out"), 1e-9)
	assert.Empty(t, res.Warnings)
}

func TestPropagateFrom_ChainedGroups(t *testing.T) {
	net := network.New()
	src := net.AddBuffer("src")
	a := addStep(t, net, "a", qty{"x": 2}, qty{"y": 1}, 1)
	b := addStep(t, net, "b", qty{"y": 1}, qty{"x": 1, "z": 1}, 1)
	c := addStep(t, net, "c", qty{"z": 1, "w": 1}, qty{"v": 1}, 1)
	d := addStep(t, net, "d", qty{"v": 1}, qty{"w": 1, "out": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(src, a, "x"))
	require.NoError(t, net.Connect(a, b, "y"))
	require.NoError(t, net.Connect(b, a, "x"))
	require.NoError(t, net.Connect(b, c, "z"))
	require.NoError(t, net.Connect(c, d, "v"))
	require.NoError(t, net.Connect(d, c, "w"))
	require.NoError(t, net.Connect(d, sink, "out"))

	res, err := newEngine(t, net).PropagateFrom(a, 1)
	require.NoError(t, err)

	require.Len(t, net.Groups(), 2)
	require.Len(t, res.Solves, 2)
	for _, id := range []network.NodeID{a, b, c, d} {
		assert.InDelta(t, 1.0, res.Rates[id], 1e-9)
	}
	assert.InDelta(t, -1.0, res.Flow(src, "x"), 1e-9)
	assert.InDelta(t, 1.0, res.Flow(sink, "out"), 1e-9)
	assert.Empty(t, res.Warnings)
}

func TestPropagateFrom_SharedSinkPool(t *testing.T) {
	net, _, a, _, sink := loop(t)
	ore := net.AddBuffer("ore")
	zs := addStep(t, net, "zs", qty{"ore": 1}, qty{"z": 1}, 1)
	require.NoError(t, net.Connect(ore, zs, "ore"))
	require.NoError(t, net.Connect(zs, sink, "z"))

	res, err := newEngine(t, net).PropagateFrom(a, 1)
	require.NoError(t, err)

	// the loop alone fills the sink; zs is not driven by it
	require.Len(t, res.Solves, 1)
	assert.InDelta(t, 1.0, res.Flow(sink, "z"), 1e-9)
	assert.NotContains(t, res.Rates, zs)
	assert.NotContains(t, res.Flows, ore)
	assert.Empty(t, res.Warnings)
}

func TestPropagateFrom_BorderStepWithSecondSource(t *testing.T) {
	net := network.New()
	src := net.AddBuffer("src")
	r := net.AddBuffer("r")
	a := addStep(t, net, "a", qty{"x": 2}, qty{"y": 1}, 1)
	b := addStep(t, net, "b", qty{"y": 1}, qty{"x": 1, "z": 1}, 1)
	q := addStep(t, net, "q", qty{"z": 1}, qty{"w": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(src, a, "x"))
	require.NoError(t, net.Connect(a, b, "y"))
	require.NoError(t, net.Connect(b, a, "x"))
	require.NoError(t, net.Connect(r, q, "z"))
	require.NoError(t, net.Connect(b, q, "z"))
	require.NoError(t, net.Connect(q, sink, "w"))

	res, err := newEngine(t, net).PropagateFrom(a, 1)
	require.NoError(t, err)

	// q's z is fully supplied by the loop, r stays untouched
	assert.InDelta(t, 1.0, res.Rates[q], 1e-9)
	assert.InDelta(t, 1.0, res.Flow(sink, "w"), 1e-9)
	assert.NotContains(t, res.Flows, r)
	assert.Empty(t, res.Warnings)
}

func TestPropagateFrom_SingleSource(t *testing.T) {
	net := network.New()
	first := net.AddBuffer("first")
	second := net.AddBuffer("second")
	c := addStep(t, net, "c", qty{"x": 1}, qty{"y": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(first, c, "x"))
	require.NoError(t, net.Connect(second, c, "x"))
	require.NoError(t, net.Connect(c, sink, "y"))

	e := newEngine(t, net)
	for i := 0; i < 3; i++ {
		res, err := e.PropagateFrom(c, 4)
		require.NoError(t, err)
		assert.Equal(t, -4.0, res.Flow(first, "x"))
		_, touched := res.Flows[second]
		assert.False(t, touched)
	}
}

func TestPropagateFrom_MissingConnection(t *testing.T) {
	net := network.New()
	a := addStep(t, net, "a", qty{"x": 1}, qty{"y": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(a, sink, "y"))

	res, err := newEngine(t, net).PropagateFrom(a, 1)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, network.ErrMissingConnection))

	var nerr *network.Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, recipe.Item("x"), nerr.Item)
}

func TestPropagateFrom_InvalidStart(t *testing.T) {
	net := network.New()
	buf := net.AddBuffer("buf")
	e := newEngine(t, net)

	_, err := e.PropagateFrom(buf, 1)
	assert.True(t, errors.Is(err, ErrNotAStep))

	_, err = e.PropagateFrom(42, 1)
	assert.True(t, errors.Is(err, network.ErrNodeNotFound))

	_, err = e.PropagateFrom(buf, math.NaN())
	assert.True(t, errors.Is(err, ErrInvalidRate))
	_, err = e.PropagateFrom(buf, -1)
	assert.True(t, errors.Is(err, ErrInvalidRate))
}

func TestPropagateFrom_StaleGroups(t *testing.T) {
	net, _, a, _, _ := loop(t)
	cfg := config.DefaultEngineConfig()
	off := false
	cfg.AutoDetect = &off
	e := newEngine(t, net, WithConfig(cfg))

	_, err := e.PropagateFrom(a, 1)
	assert.True(t, errors.Is(err, network.ErrInvalidGroupTopology))

	_, err = e.DetectGroups()
	require.NoError(t, err)
	_, err = e.PropagateFrom(a, 1)
	require.NoError(t, err)

	net.AddBuffer("late")
	_, err = e.PropagateFrom(a, 1)
	assert.True(t, errors.Is(err, network.ErrInvalidGroupTopology))
}

// diamond wires src -> a, a -y-> b -y2-> d, a -z-> c -z2-> d, d -> sink where d
// wants twice as much z2 as y2 but both branches carry the same rate.
func diamond(t *testing.T) (*network.Network, network.NodeID) {
	t.Helper()
	net := network.New()
	src := net.AddBuffer("src")
	a := addStep(t, net, "a", qty{"x": 1}, qty{"y": 1, "z": 1}, 1)
	b := addStep(t, net, "b", qty{"y": 1}, qty{"y2": 1}, 1)
	c := addStep(t, net, "c", qty{"z": 1}, qty{"z2": 1}, 1)
	d := addStep(t, net, "d", qty{"y2": 1, "z2": 2}, qty{"w": 1}, 1)
	sink := net.AddBuffer("sink")
	require.NoError(t, net.Connect(src, a, "x"))
	require.NoError(t, net.Connect(a, b, "y"))
	require.NoError(t, net.Connect(a, c, "z"))
	require.NoError(t, net.Connect(b, d, "y2"))
	require.NoError(t, net.Connect(c, d, "z2"))
	require.NoError(t, net.Connect(d, sink, "w"))
	return net, a
}

func TestPropagateFrom_InconsistentDiamond(t *testing.T) {
	net, a := diamond(t)

	res, err := newEngine(t, net).PropagateFrom(a, 1)
	require.NoError(t, err)
	require.Len(t, net.Groups(), 1)
	require.Len(t, res.Solves, 1)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, WarningResidual, res.Warnings[0].Kind)
	assert.True(t, errors.Is(res.Warnings[0].Err, network.ErrNumericalInconsistency))
}

func TestPropagateFrom_RateConflict(t *testing.T) {
	net, a := diamond(t)
	// an empty group table leaves the loop to the one-hop walk
	_, err := net.SetGroups(nil)
	require.NoError(t, err)
	cfg := config.DefaultEngineConfig()
	off := false
	cfg.AutoDetect = &off

	res, err := newEngine(t, net, WithConfig(cfg)).PropagateFrom(a, 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Rates[a])
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.Equal(t, WarningRateConflict, w.Kind)
		assert.True(t, errors.Is(w.Err, network.ErrNumericalInconsistency))
	}
}

func TestPropagateFrom_StrictResidual(t *testing.T) {
	net := network.New()
	a := addStep(t, net, "a", qty{"x": 1}, qty{"y": 1}, 1)
	b := addStep(t, net, "b", qty{"y": 1}, qty{"x": 2}, 1)
	require.NoError(t, net.Connect(a, b, "y"))
	require.NoError(t, net.Connect(b, a, "x"))

	res, err := newEngine(t, net).PropagateFrom(a, 1)
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, WarningResidual, res.Warnings[0].Kind)

	cfg := config.DefaultEngineConfig()
	cfg.StrictResidual = true
	_, err = newEngine(t, net, WithConfig(cfg)).PropagateFrom(a, 1)
	assert.True(t, errors.Is(err, network.ErrNumericalInconsistency))
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.ResidualTolerance = 2
	_, err := NewEngine(network.New(), WithConfig(cfg), WithLogger(logging.NewNopLogger()))
	assert.Error(t, err)
}

func TestResultApply(t *testing.T) {
	net, src, a, b, sink := loop(t)
	stale := net.AddBuffer("stale")
	staleNode, _ := net.Node(stale)
	staleNode.Flow["x"] = 9

	res, err := newEngine(t, net).PropagateFrom(a, 2)
	require.NoError(t, err)
	require.NoError(t, res.Apply(net))

	for id, want := range map[network.NodeID]float64{a: 2, b: 2} {
		node, _ := net.Node(id)
		assert.InDelta(t, want, node.Rate, 1e-9)
	}
	srcNode, _ := net.Node(src)
	sinkNode, _ := net.Node(sink)
	assert.InDelta(t, -2.0, srcNode.Flow["x"], 1e-9)
	assert.InDelta(t, 2.0, sinkNode.Flow["z"], 1e-9)
	assert.Empty(t, staleNode.Flow)

	require.NoError(t, net.RemoveNode(sink))
	assert.True(t, errors.Is(res.Apply(net), network.ErrNodeNotFound))
}

func TestPropagateFrom_Metrics(t *testing.T) {
	net, _, a, _, _ := loop(t)
	reg := metrics.NewRegistry()
	e := newEngine(t, net, WithMetrics(reg))

	_, err := e.PropagateFrom(a, 1)
	require.NoError(t, err)

	var m dto.Metric
	require.NoError(t, reg.PropagationRunsTotal.WithLabelValues("success").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	m.Reset()
	require.NoError(t, reg.GroupSolvesTotal.WithLabelValues("success").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	m.Reset()
	require.NoError(t, reg.CycleGroups.Write(&m))
	assert.Equal(t, 1.0, m.GetGauge().GetValue())
}

// chain builds src -> s0 -> ... -> s(n-1) -> sink where step k turns q[3k]
// of i<k> into q[3k+1] of i<k+1> over q[3k+2] ticks.
func chain(n int, q []int) (*network.Network, []network.NodeID, network.NodeID, network.NodeID, error) {
	net := network.New()
	src := net.AddBuffer("src")
	ids := make([]network.NodeID, n)
	for k := 0; k < n; k++ {
		in := recipe.Item(fmt.Sprintf("i%d", k))
		out := recipe.Item(fmt.Sprintf("i%d", k+1))
		r, err := recipe.New("", qty{in: float64(q[3*k])}, qty{out: float64(q[3*k+1])}, float64(q[3*k+2]), 0)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		if ids[k], err = net.AddStep(fmt.Sprintf("s%d", k), "", r); err != nil {
			return nil, nil, 0, 0, err
		}
	}
	sink := net.AddBuffer("sink")
	prev := src
	for k, id := range ids {
		if err := net.Connect(prev, id, recipe.Item(fmt.Sprintf("i%d", k))); err != nil {
			return nil, nil, 0, 0, err
		}
		prev = id
	}
	if err := net.Connect(prev, sink, recipe.Item(fmt.Sprintf("i%d", n))); err != nil {
		return nil, nil, 0, 0, err
	}
	return net, ids, src, sink, nil
}

func TestPropagateFrom_ConservationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("acyclic chains conserve every item", prop.ForAll(
		func(n, start int, q []int, rate float64) bool {
			net, ids, src, sink, err := chain(n, q)
			if err != nil {
				return false
			}
			e, err := NewEngine(net, WithLogger(logging.NewNopLogger()))
			if err != nil {
				return false
			}
			res, err := e.PropagateFrom(ids[start%n], rate)
			if err != nil || len(res.Warnings) != 0 {
				return false
			}

			near := func(a, b float64) bool {
				return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(a))
			}
			for k := 0; k+1 < n; k++ {
				up, _ := net.Node(ids[k])
				down, _ := net.Node(ids[k+1])
				item := recipe.Item(fmt.Sprintf("i%d", k+1))
				if !near(res.Rates[ids[k]]*up.Recipe.OutRate(item), res.Rates[ids[k+1]]*down.Recipe.InRate(item)) {
					return false
				}
			}
			first, _ := net.Node(ids[0])
			last, _ := net.Node(ids[n-1])
			return near(-res.Flow(src, "i0"), res.Rates[ids[0]]*first.Recipe.InRate("i0")) &&
				near(res.Flow(sink, recipe.Item(fmt.Sprintf("i%d", n))),
					res.Rates[ids[n-1]]*last.Recipe.OutRate(recipe.Item(fmt.Sprintf("i%d", n))))
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 5),
		gen.SliceOfN(18, gen.IntRange(1, 5)),
		gen.Float64Range(0.1, 10),
	))

	properties.TestingRun(t)
}
