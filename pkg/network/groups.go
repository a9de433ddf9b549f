package network

import "fmt"

// SetGroups replaces the whole group table with one group per member set and
// rewrites every step's group index. Steps not listed end up ungrouped.
func (n *Network) SetGroups(members [][]NodeID) ([]GroupID, error) {
	owner := make(map[NodeID]GroupID)
	table := make([]*Group, 0, len(members))
	ids := make([]GroupID, 0, len(members))

	for _, set := range members {
		gid := GroupID(len(table))
		steps := make([]NodeID, 0, len(set))
		for _, id := range set {
			node, ok := n.nodes[id]
			if !ok {
				return nil, NodeNotFoundError("SetGroups", id)
			}
			if !node.IsStep() {
				return nil, NewError("SetGroups").Node(id).Cause(ErrInvalidGroupTopology).Context("%s is not a step", node).Err()
			}
			if prev, taken := owner[id]; taken {
				return nil, NewError("SetGroups").Node(id).Cause(ErrUnsupportedNesting).
					Context("%s is already in group %d", node, prev).Err()
			}
			owner[id] = gid
			steps = append(steps, id)
		}
		table = append(table, &Group{ID: gid, Steps: steps})
		ids = append(ids, gid)
	}

	for _, node := range n.nodes {
		if !node.IsStep() {
			continue
		}
		if gid, ok := owner[node.ID]; ok {
			node.Group = gid
		} else {
			node.Group = NoGroup
		}
	}
	n.groups = table
	n.groupRevision = n.revision
	n.groupsSet = true
	return ids, nil
}

// ClearGroups drops the group table.
func (n *Network) ClearGroups() {
	for _, node := range n.nodes {
		node.Group = NoGroup
	}
	n.groups = nil
	n.groupsSet = false
}

// GroupsCurrent reports whether groups were assigned after the latest
// structural edit.
func (n *Network) GroupsCurrent() bool {
	return n.groupsSet && n.groupRevision == n.revision
}

// Groups returns the group table.
func (n *Network) Groups() []*Group {
	return n.groups
}

// Group returns one entry of the group table.
func (n *Network) Group(id GroupID) (*Group, error) {
	if id < 0 || int(id) >= len(n.groups) {
		return nil, NewError("Group").Group(id).Cause(ErrGroupNotFound).
			Context("table has %d groups", len(n.groups)).Err()
	}
	return n.groups[id], nil
}

// GroupOf returns the group a step belongs to.
func (n *Network) GroupOf(id NodeID) (*Group, bool) {
	node, ok := n.nodes[id]
	if !ok || !node.Grouped() || int(node.Group) >= len(n.groups) {
		return nil, false
	}
	return n.groups[node.Group], true
}

func (g *Group) String() string {
	return fmt.Sprintf("group %d (%d steps)", g.ID, len(g.Steps))
}
