package group

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/dd0wney/procline/pkg/network"
)

// Variable is one unknown of a group system: either the rate of a member step
// or the net inflow through a border hatch.
type Variable struct {
	Border bool
	Hatch  Hatch // Hatch.Node is the member step for rate variables
}

// RateVar is the rate variable of a member step.
func RateVar(id network.NodeID) Variable {
	return Variable{Hatch: Hatch{Node: id}}
}

// BorderVar is the inflow variable of a hatch outside the group.
func BorderVar(h Hatch) Variable {
	return Variable{Border: true, Hatch: h}
}

func (v Variable) String() string {
	if v.Border {
		return "border " + v.Hatch.String()
	}
	return fmt.Sprintf("rate %d", v.Hatch.Node)
}

// System is the balance of one group: one row per junction, one column per
// variable. A member consuming an item contributes -InRate, a member
// producing it +OutRate, a border hatch 1; every row sums to zero. Only
// border hatches linked directly to a member become variables.
type System struct {
	Group     network.GroupID
	A         *mat.Dense
	Vars      []Variable
	Junctions [][]Hatch
	// Causes maps each border node to the in-group step it is attached to.
	Causes map[network.NodeID]network.NodeID

	index map[Variable]int
}

type entry struct {
	row, col int
	coef     float64
}

// Build assembles the system for group gid of net.
func Build(net *network.Network, gid network.GroupID) (*System, error) {
	g, err := net.Group(gid)
	if err != nil {
		return nil, err
	}

	sys := &System{
		Group:  gid,
		Causes: make(map[network.NodeID]network.NodeID),
		index:  make(map[Variable]int),
	}
	rowOf := make(map[Hatch]int)
	borderRow := make(map[network.NodeID]int)
	var entries []entry

	col := func(v Variable) int {
		if i, ok := sys.index[v]; ok {
			return i
		}
		i := len(sys.Vars)
		sys.index[v] = i
		sys.Vars = append(sys.Vars, v)
		return i
	}

	junction := func(start Hatch) (int, error) {
		if row, ok := rowOf[start]; ok {
			return row, nil
		}
		hatches, err := Junction(net, start)
		if err != nil {
			return 0, err
		}
		row := len(sys.Junctions)
		sys.Junctions = append(sys.Junctions, hatches)
		for _, h := range hatches {
			rowOf[h] = row
			if g.Contains(h.Node) {
				continue
			}
			node, _ := net.Node(h.Node)
			member, adjacent := attachedMember(node, h, g)
			if !adjacent {
				// reached only through another border node; its share is
				// not decided by this group
				continue
			}
			if node.IsStep() {
				if prev, ok := borderRow[h.Node]; ok && prev != row {
					return 0, network.NewError("Build").Group(gid).Cause(network.ErrInvalidGroupTopology).
						Context("border %s touches more than one junction", node).Err()
				}
				borderRow[h.Node] = row
			}
			entries = append(entries, entry{row: row, col: col(BorderVar(h)), coef: 1})
			if _, ok := sys.Causes[h.Node]; !ok {
				sys.Causes[h.Node] = member
			}
		}
		return row, nil
	}

	for _, id := range g.Steps {
		member, err := net.Node(id)
		if err != nil {
			return nil, err
		}
		if !member.IsStep() || member.Group != gid {
			return nil, network.NewError("Build").Node(id).Cause(network.ErrUnsupportedNesting).
				Context("%s is listed in group %d but belongs to group %d", member, gid, member.Group).Err()
		}

		for _, item := range member.Recipe.ConsumedItems() {
			if len(member.Pull[item]) == 0 {
				return nil, network.MissingConnectionError("Build", id, item, network.DirPull.String())
			}
			row, err := junction(Hatch{Node: id, Dir: network.DirPull, Item: item})
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry{row: row, col: col(RateVar(id)), coef: -member.Recipe.InRate(item)})
		}
		for _, item := range member.Recipe.ProducedItems() {
			if len(member.Push[item]) == 0 {
				return nil, network.MissingConnectionError("Build", id, item, network.DirPush.String())
			}
			row, err := junction(Hatch{Node: id, Dir: network.DirPush, Item: item})
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry{row: row, col: col(RateVar(id)), coef: member.Recipe.OutRate(item)})
		}
	}

	if len(sys.Junctions) == 0 || len(sys.Vars) == 0 {
		return nil, network.NewError("Build").Group(gid).Cause(network.ErrInvalidGroupTopology).
			Context("group has no connections").Err()
	}
	sys.A = mat.NewDense(len(sys.Junctions), len(sys.Vars), nil)
	for _, e := range entries {
		sys.A.Set(e.row, e.col, sys.A.At(e.row, e.col)+e.coef)
	}
	return sys, nil
}

// attachedMember picks the first in-group step linked to the border hatch h.
func attachedMember(node *network.Node, h Hatch, g *network.Group) (network.NodeID, bool) {
	for _, other := range node.Links(h.Dir, h.Item) {
		if g.Contains(other) {
			return other, true
		}
	}
	return 0, false
}

// Index returns the column of v.
func (s *System) Index(v Variable) (int, bool) {
	i, ok := s.index[v]
	return i, ok
}
