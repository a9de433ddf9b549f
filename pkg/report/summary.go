// Package report summarises a propagation run: power draw, buffer flows and
// machine counts.
package report

import (
	"sort"

	"github.com/dd0wney/procline/pkg/network"
	"github.com/dd0wney/procline/pkg/propagation"
	"github.com/dd0wney/procline/pkg/recipe"
)

// NeutralThreshold is the magnitude below which a net flow counts as balanced.
const NeutralThreshold = 1e-10

// StepPower is the draw of one step at its propagated rate.
type StepPower struct {
	Node     network.NodeID
	Name     string
	Rate     float64
	EUt      float64
	Amps     float64
	Tier     int
	MinTier  int
	SurgeEUt float64
}

// ItemFlow is the net flow of one item summed over every buffer.
type ItemFlow struct {
	Item    recipe.Item
	Flow    float64
	Neutral bool
}

// MachineCount counts steps per machine name.
type MachineCount struct {
	Machine string
	Count   int
}

// Summary is the printable outcome of a run.
type Summary struct {
	RunID string

	Steps     []StepPower
	EUt       float64
	Amps      float64
	Tier      int
	SurgeEUt  float64
	SurgeAmps float64
	SurgeTier int

	Flows    []ItemFlow
	Machines []MachineCount
	Groups   []propagation.GroupSolve
	Warnings []string
}

// Summarize computes the summary of res over net. Steps the run did not reach
// count as idle.
func Summarize(net *network.Network, res *propagation.Result) *Summary {
	s := &Summary{RunID: res.RunID, Groups: res.Solves}

	machines := make(map[string]int)
	for _, node := range net.Steps() {
		rate := res.Rates[node.ID]
		eut := node.Recipe.Power * rate
		amps, tier := recipe.PowerTier(eut)
		_, minTier := recipe.PowerTier(node.Recipe.Power)
		surge := recipe.SurgeEUt(node.Recipe, rate)

		s.Steps = append(s.Steps, StepPower{
			Node:     node.ID,
			Name:     node.String(),
			Rate:     rate,
			EUt:      eut,
			Amps:     amps,
			Tier:     tier,
			MinTier:  minTier,
			SurgeEUt: surge,
		})
		s.EUt += eut
		s.SurgeEUt += surge

		if _, seen := machines[node.Machine]; !seen {
			s.Machines = append(s.Machines, MachineCount{Machine: node.Machine})
		}
		machines[node.Machine]++
	}
	for i := range s.Machines {
		s.Machines[i].Count = machines[s.Machines[i].Machine]
	}
	s.Amps, s.Tier = recipe.PowerTier(s.EUt)
	s.SurgeAmps, s.SurgeTier = recipe.PowerTier(s.SurgeEUt)

	for item, flow := range res.NetFlows {
		s.Flows = append(s.Flows, ItemFlow{
			Item:    item,
			Flow:    flow,
			Neutral: flow < NeutralThreshold && flow > -NeutralThreshold,
		})
	}
	sort.Slice(s.Flows, func(i, j int) bool {
		if s.Flows[i].Flow != s.Flows[j].Flow {
			return s.Flows[i].Flow < s.Flows[j].Flow
		}
		return s.Flows[i].Item < s.Flows[j].Item
	})

	for _, w := range res.Warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	return s
}
