package algorithms

import (
	"github.com/dd0wney/procline/pkg/network"
)

// AssignGroups turns every component with more than one step into a group of
// net, replacing the previous group table. Singletons stay ungrouped.
func AssignGroups(net *network.Network, sccs []SCC) ([]network.GroupID, error) {
	seen := make(map[network.NodeID]int, len(sccs))
	members := make([][]network.NodeID, 0, len(sccs))
	for i, c := range sccs {
		for _, id := range c {
			if prev, dup := seen[id]; dup && prev != i {
				return nil, network.NewError("AssignGroups").Node(id).Cause(network.ErrUnsupportedNesting).
					Context("step appears in components %d and %d", prev, i).Err()
			}
			seen[id] = i
		}
		if len(c) > 1 {
			members = append(members, c)
		}
	}
	return net.SetGroups(members)
}

// FindGroups detects the cycles of net and installs them as its groups.
func FindGroups(net *network.Network) ([]SCC, []network.GroupID, error) {
	sccs, err := DetectCycles(net)
	if err != nil {
		return nil, nil, err
	}
	ids, err := AssignGroups(net, sccs)
	if err != nil {
		return nil, nil, err
	}
	return sccs, ids, nil
}
