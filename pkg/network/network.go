package network

import (
	"fmt"
	"slices"

	"github.com/dd0wney/procline/pkg/recipe"
)

// Network is the production graph edited by the front end and read by the
// cycle detector and the propagation engine. It is not safe for concurrent
// use; callers serialise edits and propagation runs.
type Network struct {
	nodes  map[NodeID]*Node
	order  []NodeID
	nextID NodeID

	groups        []*Group
	revision      uint64
	groupRevision uint64
	groupsSet     bool
}

// New creates an empty network.
func New() *Network {
	return &Network{
		nodes:  make(map[NodeID]*Node),
		nextID: 1,
	}
}

// AddStep adds a production step running r on the named machine.
func (n *Network) AddStep(name, machine string, r *recipe.Recipe) (NodeID, error) {
	if err := r.Validate(); err != nil {
		return 0, NewError("AddStep").Cause(ErrInvalidRecipe).Context("%v", err).Err()
	}
	node := n.newNode(name, KindStep)
	node.Machine = machine
	node.Recipe = r
	node.Group = NoGroup
	return node.ID, nil
}

// AddBuffer adds an external source/sink.
func (n *Network) AddBuffer(name string) NodeID {
	node := n.newNode(name, KindBuffer)
	node.Group = NoGroup
	node.Flow = make(map[recipe.Item]float64)
	return node.ID
}

func (n *Network) newNode(name string, kind Kind) *Node {
	node := &Node{
		ID:   n.nextID,
		Name: name,
		Kind: kind,
		Pull: make(map[recipe.Item][]NodeID),
		Push: make(map[recipe.Item][]NodeID),
	}
	n.nextID++
	n.nodes[node.ID] = node
	n.order = append(n.order, node.ID)
	n.touch()
	return node
}

// Connect declares that from hands item to to: to joins from.Push[item] and
// from joins to.Pull[item].
func (n *Network) Connect(from, to NodeID, item recipe.Item) error {
	src, dst, err := n.pair("Connect", from, to)
	if err != nil {
		return err
	}
	if from == to {
		return NewError("Connect").Node(from).Item(item).Cause(ErrInvalidConnection).Context("node cannot feed itself").Err()
	}
	if item == "" {
		return NewError("Connect").Node(from).Cause(ErrInvalidConnection).Context("empty item").Err()
	}
	if !src.Handles(DirPush, item) {
		return NewError("Connect").Node(from).Item(item).Cause(ErrRecipeMismatch).Context("%s does not produce it", src).Err()
	}
	if !dst.Handles(DirPull, item) {
		return NewError("Connect").Node(to).Item(item).Cause(ErrRecipeMismatch).Context("%s does not consume it", dst).Err()
	}
	if slices.Contains(src.Push[item], to) {
		return NewError("Connect").Node(from).Item(item).Cause(ErrDuplicateConnection).Context("already feeds %s", dst).Err()
	}

	src.Push[item] = append(src.Push[item], to)
	dst.Pull[item] = append(dst.Pull[item], from)
	n.touch()
	return nil
}

// Disconnect removes a connection made by Connect.
func (n *Network) Disconnect(from, to NodeID, item recipe.Item) error {
	src, dst, err := n.pair("Disconnect", from, to)
	if err != nil {
		return err
	}
	if !slices.Contains(src.Push[item], to) {
		return NewError("Disconnect").Node(from).Item(item).Cause(ErrInvalidConnection).Context("does not feed %s", dst).Err()
	}
	src.Push[item] = removeID(src.Push[item], to)
	dst.Pull[item] = removeID(dst.Pull[item], from)
	pruneEmpty(src.Push, item)
	pruneEmpty(dst.Pull, item)
	n.touch()
	return nil
}

// RemoveNode deletes a node and strips every reference to it from the other
// nodes' connection lists and from its group.
func (n *Network) RemoveNode(id NodeID) error {
	node, ok := n.nodes[id]
	if !ok {
		return NodeNotFoundError("RemoveNode", id)
	}

	for _, other := range n.nodes {
		for item, ids := range other.Pull {
			other.Pull[item] = removeID(ids, id)
			pruneEmpty(other.Pull, item)
		}
		for item, ids := range other.Push {
			other.Push[item] = removeID(ids, id)
			pruneEmpty(other.Push, item)
		}
	}

	if node.Grouped() && int(node.Group) < len(n.groups) {
		g := n.groups[node.Group]
		g.Steps = removeID(g.Steps, id)
	}

	delete(n.nodes, id)
	n.order = removeID(n.order, id)
	n.touch()
	return nil
}

// Node returns the node with the given ID.
func (n *Network) Node(id NodeID) (*Node, error) {
	node, ok := n.nodes[id]
	if !ok {
		return nil, NodeNotFoundError("Node", id)
	}
	return node, nil
}

// Lookup returns the first node with the given name.
func (n *Network) Lookup(name string) (*Node, bool) {
	for _, id := range n.order {
		if node := n.nodes[id]; node.Name == name {
			return node, true
		}
	}
	return nil, false
}

// Nodes returns all nodes in insertion order.
func (n *Network) Nodes() []*Node {
	out := make([]*Node, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.nodes[id])
	}
	return out
}

// Steps returns the step nodes in insertion order.
func (n *Network) Steps() []*Node {
	return n.filter(KindStep)
}

// Buffers returns the buffer nodes in insertion order.
func (n *Network) Buffers() []*Node {
	return n.filter(KindBuffer)
}

// Len returns the number of nodes.
func (n *Network) Len() int {
	return len(n.order)
}

// Revision increases on every structural edit.
func (n *Network) Revision() uint64 {
	return n.revision
}

func (n *Network) filter(kind Kind) []*Node {
	var out []*Node
	for _, id := range n.order {
		if node := n.nodes[id]; node.Kind == kind {
			out = append(out, node)
		}
	}
	return out
}

func (n *Network) pair(op string, from, to NodeID) (*Node, *Node, error) {
	src, ok := n.nodes[from]
	if !ok {
		return nil, nil, NodeNotFoundError(op, from)
	}
	dst, ok := n.nodes[to]
	if !ok {
		return nil, nil, NodeNotFoundError(op, to)
	}
	return src, dst, nil
}

func (n *Network) touch() {
	n.revision++
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	return slices.DeleteFunc(ids, func(x NodeID) bool { return x == id })
}

func pruneEmpty(m map[recipe.Item][]NodeID, item recipe.Item) {
	if len(m[item]) == 0 {
		delete(m, item)
	}
}

// Describe renders a node for log lines and error contexts.
func (n *Network) Describe(id NodeID) string {
	if node, ok := n.nodes[id]; ok {
		return node.String()
	}
	return fmt.Sprintf("node %d", id)
}
