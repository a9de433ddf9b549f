// Package group builds and solves the linear balance of one feedback loop.
package group

import (
	"fmt"

	"github.com/dd0wney/procline/pkg/network"
	"github.com/dd0wney/procline/pkg/recipe"
)

// Hatch is one side of a node for one item.
type Hatch struct {
	Node network.NodeID
	Dir  network.Dir
	Item recipe.Item
}

func (h Hatch) String() string {
	return fmt.Sprintf("%d/%s/%s", h.Node, h.Dir, h.Item)
}

// Junction returns every hatch that shares a pool of item with start: the
// closure of following pull lists to push hatches and push lists to pull
// hatches. start comes first; the rest follow in breadth-first order.
func Junction(net *network.Network, start Hatch) ([]Hatch, error) {
	if _, err := net.Node(start.Node); err != nil {
		return nil, err
	}

	seen := map[Hatch]bool{start: true}
	queue := []Hatch{start}
	for i := 0; i < len(queue); i++ {
		h := queue[i]
		node, err := net.Node(h.Node)
		if err != nil {
			return nil, err
		}
		for _, other := range node.Links(h.Dir, h.Item) {
			next := Hatch{Node: other, Dir: h.Dir.Opposite(), Item: h.Item}
			if seen[next] {
				continue
			}
			if _, err := net.Node(other); err != nil {
				return nil, err
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return queue, nil
}
