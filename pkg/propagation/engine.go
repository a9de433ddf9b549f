// Package propagation computes steady-state rates and buffer flows from one
// fixed step rate.
package propagation

import (
	"errors"
	"math"

	"github.com/dd0wney/procline/pkg/algorithms"
	"github.com/dd0wney/procline/pkg/config"
	"github.com/dd0wney/procline/pkg/group"
	"github.com/dd0wney/procline/pkg/logging"
	"github.com/dd0wney/procline/pkg/metrics"
	"github.com/dd0wney/procline/pkg/network"
)

var (
	ErrInvalidRate = errors.New("rate must be a finite non-negative number")
	ErrNotAStep    = errors.New("propagation must start at a step")
)

// Engine runs propagation over one network. It is not safe for concurrent
// use.
type Engine struct {
	net     *network.Network
	cfg     config.EngineConfig
	logger  logging.Logger
	metrics *metrics.Registry
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default engine configuration.
func WithConfig(cfg config.EngineConfig) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records runs into registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(e *Engine) {
		e.metrics = registry
	}
}

// NewEngine creates an engine for net.
func NewEngine(net *network.Network, opts ...Option) (*Engine, error) {
	e := &Engine{
		net:    net,
		cfg:    config.DefaultEngineConfig(),
		logger: logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.ApplyDefaults()
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	e.logger = e.logger.With(logging.Component("propagation"))
	return e, nil
}

// Network returns the network the engine runs on.
func (e *Engine) Network() *network.Network {
	return e.net
}

// DetectGroups re-runs cycle detection and installs the groups.
func (e *Engine) DetectGroups() ([]algorithms.SCC, error) {
	sccs, _, err := algorithms.FindGroups(e.net)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordCycleDetectionError()
		}
		e.logger.Error("cycle detection failed", logging.Error(err))
		return nil, err
	}

	stats := algorithms.SCCStats(sccs)
	if e.metrics != nil {
		e.metrics.RecordCycleDetection(stats.Groups, stats.LargestSize, stats.SingletonCount)
		e.metrics.UpdateNetworkSize(len(e.net.Steps()), len(e.net.Buffers()))
	}
	e.logger.Debug("cycles detected",
		logging.Count(stats.Groups),
		logging.Int("largest", stats.LargestSize),
		logging.Int("singletons", stats.SingletonCount))
	return sccs, nil
}

// PropagateFrom fixes step at rate and walks the network until every
// reachable node has a rate or flow.
func (e *Engine) PropagateFrom(step network.NodeID, rate float64) (*Result, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return nil, network.NewError("PropagateFrom").Node(step).Cause(ErrInvalidRate).Context("got %v", rate).Err()
	}
	node, err := e.net.Node(step)
	if err != nil {
		return nil, err
	}
	if !node.IsStep() {
		return nil, network.NewError("PropagateFrom").Node(step).Cause(ErrNotAStep).Context("%s is a %s", node, node.Kind).Err()
	}

	if !e.net.GroupsCurrent() {
		if !e.cfg.AutoDetectEnabled() {
			return nil, network.NewError("PropagateFrom").Cause(network.ErrInvalidGroupTopology).
				Context("groups are stale; run cycle detection first").Err()
		}
		if _, err := e.DetectGroups(); err != nil {
			return nil, err
		}
	}

	r := newRun(e, step, rate)
	timer := logging.StartTimer(r.logger, "propagation finished")
	r.logger.Info("propagation started", logging.NodeID(uint64(step)), logging.Node(node.Name), logging.Rate(rate))

	if err := r.execute(); err != nil {
		timer.EndError(err)
		if e.metrics != nil {
			e.metrics.RecordPropagation("error", timer.Elapsed(), len(r.res.Order))
		}
		return nil, err
	}

	r.res.finish()
	r.res.Duration = timer.Elapsed()
	timer.End(logging.Count(len(r.res.Order)), logging.Int("warnings", len(r.res.Warnings)))
	if e.metrics != nil {
		e.metrics.RecordPropagation("success", r.res.Duration, len(r.res.Order))
	}
	return r.res, nil
}

func (e *Engine) groupOptions() group.Options {
	return group.Options{
		ResidualTolerance: e.cfg.ResidualTolerance,
		RankTolerance:     e.cfg.RankTolerance,
		Strict:            e.cfg.StrictResidual,
	}
}
