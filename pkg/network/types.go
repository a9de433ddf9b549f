// Package network holds the production graph: steps, buffers, the per-item
// pull/push connectivity between them, and the table of detected groups.
package network

import (
	"fmt"

	"github.com/dd0wney/procline/pkg/recipe"
)

// NodeID identifies a node within one Network.
type NodeID uint64

// GroupID indexes the network's group table.
type GroupID int

// NoGroup marks a step that is not part of any cycle.
const NoGroup GroupID = -1

// Kind discriminates the node variants.
type Kind uint8

const (
	// KindStep is a production step bound to a recipe.
	KindStep Kind = iota
	// KindBuffer is an external source or sink.
	KindBuffer
)

func (k Kind) String() string {
	switch k {
	case KindStep:
		return "step"
	case KindBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Dir is the side of a node a connection attaches to.
type Dir uint8

const (
	// DirPull is the input side: the node receives the item.
	DirPull Dir = iota
	// DirPush is the output side: the node sends the item.
	DirPush
)

// Opposite returns the other side.
func (d Dir) Opposite() Dir {
	if d == DirPull {
		return DirPush
	}
	return DirPull
}

func (d Dir) String() string {
	if d == DirPull {
		return "pull"
	}
	return "push"
}

// Node is a vertex of the production graph.
//
// Pull lists, per item, the upstream nodes this node takes the item from;
// Push lists the downstream nodes it hands the item to. Both are ordered by
// declaration.
type Node struct {
	ID   NodeID
	Name string
	Kind Kind

	Pull map[recipe.Item][]NodeID
	Push map[recipe.Item][]NodeID

	// Step fields
	Machine string
	Recipe  *recipe.Recipe
	Rate    float64
	Group   GroupID

	// Buffer fields
	Flow map[recipe.Item]float64
}

// IsStep reports whether the node is a production step.
func (n *Node) IsStep() bool { return n.Kind == KindStep }

// IsBuffer reports whether the node is an external buffer.
func (n *Node) IsBuffer() bool { return n.Kind == KindBuffer }

// Grouped reports whether the node is a step inside a detected cycle.
func (n *Node) Grouped() bool { return n.Kind == KindStep && n.Group != NoGroup }

// Links returns the connection list on the given side for item.
func (n *Node) Links(dir Dir, item recipe.Item) []NodeID {
	if dir == DirPull {
		return n.Pull[item]
	}
	return n.Push[item]
}

// Handles reports whether the node can attach item on the given side.
// Buffers accept any item on either side.
func (n *Node) Handles(dir Dir, item recipe.Item) bool {
	switch n.Kind {
	case KindBuffer:
		return true
	case KindStep:
		if dir == DirPull {
			return n.Recipe.Consumes(item)
		}
		return n.Recipe.Produces(item)
	default:
		return false
	}
}

func (n *Node) String() string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("%s %d", n.Kind, n.ID)
}

// Group is one detected cycle of steps that is solved jointly.
type Group struct {
	ID    GroupID
	Steps []NodeID
}

// Contains reports whether id is a member of the group.
func (g *Group) Contains(id NodeID) bool {
	for _, s := range g.Steps {
		if s == id {
			return true
		}
	}
	return false
}
