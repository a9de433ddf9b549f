// Package algorithms finds the feedback loops of a production network.
package algorithms

import (
	"sort"

	"github.com/dd0wney/procline/pkg/network"
	"github.com/dd0wney/procline/pkg/recipe"
)

// SCC is one strongly connected component of steps, in discovery order.
type SCC []network.NodeID

// Stats summarises a detection pass.
type Stats struct {
	Components     int
	Groups         int // components with more than one step
	LargestSize    int
	SingletonCount int
}

// tarjanState holds per-node state during Tarjan's DFS.
type tarjanState struct {
	index   int
	lowlink int
	onStack bool
}

// successor is one neighbouring step together with the ids of the physical
// connections that join the pair. Both endpoints share the same edges slice.
type successor struct {
	to    network.NodeID
	edges *[]int
}

// frame is one level of the explicit DFS stack.
type frame struct {
	node    network.NodeID
	next    int // index into succ[node] of the next successor to try
	child   network.NodeID
	pending bool // child was entered through edge and has returned
	edge    int
}

// buildSuccessors builds the deduplicated step adjacency used for detection.
// A connection declared on both endpoints (as a push on one and a pull on the
// other) gets a single edge id, so the DFS cannot walk it twice on one branch.
func buildSuccessors(steps []*network.Node) map[network.NodeID][]successor {
	succ := make(map[network.NodeID][]successor, len(steps))
	slot := make(map[network.NodeID]map[network.NodeID]int, len(steps))
	isStep := make(map[network.NodeID]bool, len(steps))
	for _, s := range steps {
		isStep[s.ID] = true
		slot[s.ID] = make(map[network.NodeID]int)
	}

	nextEdge := 0
	for _, v := range steps {
		for _, w := range neighbours(v) {
			if !isStep[w] || w == v.ID {
				continue
			}
			if i, ok := slot[w][v.ID]; ok {
				// w already numbered the pair; share its edge list.
				if _, seen := slot[v.ID][w]; !seen {
					slot[v.ID][w] = len(succ[v.ID])
					succ[v.ID] = append(succ[v.ID], successor{to: w, edges: succ[w][i].edges})
				}
				continue
			}
			i, ok := slot[v.ID][w]
			if !ok {
				i = len(succ[v.ID])
				slot[v.ID][w] = i
				succ[v.ID] = append(succ[v.ID], successor{to: w, edges: new([]int)})
			}
			*succ[v.ID][i].edges = append(*succ[v.ID][i].edges, nextEdge)
			nextEdge++
		}
	}
	return succ
}

// neighbours lists every declared connection of v, pulls first, items sorted,
// one entry per connection.
func neighbours(v *network.Node) []network.NodeID {
	var out []network.NodeID
	for _, side := range []map[recipe.Item][]network.NodeID{v.Pull, v.Push} {
		items := make([]recipe.Item, 0, len(side))
		for item := range side {
			items = append(items, item)
		}
		sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
		for _, item := range items {
			out = append(out, side[item]...)
		}
	}
	return out
}

// DetectCycles partitions the steps of net into strongly connected components
// using Tarjan's algorithm over the undirected connection graph, with the
// restriction that a DFS branch never reuses a physical connection. Buffers
// never take part. Components are returned in completion order.
func DetectCycles(net *network.Network) ([]SCC, error) {
	if net == nil {
		return nil, network.NewError("DetectCycles").Cause(network.ErrNodeNotFound).Context("nil network").Err()
	}

	steps := net.Steps()
	succ := buildSuccessors(steps)

	state := make(map[network.NodeID]*tarjanState, len(steps))
	var stack []network.NodeID
	onPath := make(map[int]bool)
	indexCounter := 0
	var components []SCC

	visit := func(v network.NodeID) {
		state[v] = &tarjanState{index: indexCounter, lowlink: indexCounter, onStack: true}
		indexCounter++
		stack = append(stack, v)
	}

	for _, root := range steps {
		if _, seen := state[root.ID]; seen {
			continue
		}

		visit(root.ID)
		frames := []*frame{{node: root.ID}}

		for len(frames) > 0 {
			f := frames[len(frames)-1]
			v := f.node

			if f.pending {
				if state[f.child].lowlink < state[v].lowlink {
					state[v].lowlink = state[f.child].lowlink
				}
				delete(onPath, f.edge)
				f.pending = false
			}

			descended := false
			for f.next < len(succ[v]) {
				s := succ[v][f.next]
				f.next++

				edge, ok := freeEdge(*s.edges, onPath)
				if !ok {
					continue
				}

				w := s.to
				if _, seen := state[w]; !seen {
					onPath[edge] = true
					f.child, f.edge, f.pending = w, edge, true
					visit(w)
					frames = append(frames, &frame{node: w})
					descended = true
					break
				}
				if state[w].onStack && state[w].index < state[v].lowlink {
					state[v].lowlink = state[w].index
				}
			}
			if descended {
				continue
			}

			// If v is a root node, pop the stack to form an SCC
			if state[v].lowlink == state[v].index {
				var members SCC
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					state[w].onStack = false
					members = append(members, w)
					if w == v {
						break
					}
				}
				components = append(components, members)
			}
			frames = frames[:len(frames)-1]
		}
	}

	return components, nil
}

func freeEdge(edges []int, onPath map[int]bool) (int, bool) {
	for _, e := range edges {
		if !onPath[e] {
			return e, true
		}
	}
	return 0, false
}

// SCCStats computes summary figures over a detection result.
func SCCStats(sccs []SCC) Stats {
	stats := Stats{Components: len(sccs)}
	for _, c := range sccs {
		if len(c) == 1 {
			stats.SingletonCount++
		} else {
			stats.Groups++
		}
		if len(c) > stats.LargestSize {
			stats.LargestSize = len(c)
		}
	}
	return stats
}
