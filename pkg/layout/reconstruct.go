package layout

import (
	"fmt"
	"sort"

	"github.com/dd0wney/procline/pkg/network"
	"github.com/dd0wney/procline/pkg/recipe"
)

// Index maps node names of a document to the ids they received.
type Index map[string]network.NodeID

// Reconstruct builds a fresh network from doc: nodes first, then every
// connection is re-declared on both endpoints. Saved rates and buffer flows
// are restored as display values; groups are left for detection.
func Reconstruct(doc *Document) (*network.Network, Index, error) {
	if err := doc.Validate(); err != nil {
		return nil, nil, err
	}

	recipes := make(map[string]*recipe.Recipe, len(doc.Recipes))
	for _, spec := range doc.Recipes {
		r, err := recipe.New(spec.Name, spec.Consume, spec.Produce, spec.Duration, spec.Power)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: recipe %q: %v", ErrInvalidLayout, spec.Name, err)
		}
		recipes[spec.Name] = r
	}

	net := network.New()
	idx := make(Index, len(doc.Nodes))
	for _, spec := range doc.Nodes {
		var id network.NodeID
		switch spec.Kind {
		case KindStep:
			r, ok := recipes[spec.Recipe]
			if !ok {
				return nil, nil, fmt.Errorf("%w: node %q uses unknown recipe %q", ErrInvalidLayout, spec.Name, spec.Recipe)
			}
			var err error
			if id, err = net.AddStep(spec.Name, spec.Machine, r); err != nil {
				return nil, nil, err
			}
			node, _ := net.Node(id)
			node.Rate = spec.Rate
		case KindBuffer:
			id = net.AddBuffer(spec.Name)
			node, _ := net.Node(id)
			for item, flow := range spec.Flow {
				node.Flow[item] = flow
			}
		default:
			return nil, nil, fmt.Errorf("%w: node %q has unknown kind %q", ErrInvalidLayout, spec.Name, spec.Kind)
		}
		idx[spec.Name] = id
	}

	for _, c := range doc.Connections {
		from, ok := idx[c.From]
		if !ok {
			return nil, nil, fmt.Errorf("%w: connection from unknown node %q", ErrInvalidLayout, c.From)
		}
		to, ok := idx[c.To]
		if !ok {
			return nil, nil, fmt.Errorf("%w: connection to unknown node %q", ErrInvalidLayout, c.To)
		}
		if err := net.Connect(from, to, c.Item); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
		}
	}
	return net, idx, nil
}

// FromNetwork encodes net, including the rates and flows last applied to it.
// Unnamed recipes are given generated names; unnamed nodes are named after
// their kind and id.
func FromNetwork(net *network.Network) *Document {
	doc := &Document{}
	recipeNames := make(map[*recipe.Recipe]string)
	taken := make(map[string]bool)
	nodeNames := make(map[network.NodeID]string)

	for _, node := range net.Nodes() {
		name := node.Name
		if name == "" || taken["node:"+name] {
			name = fmt.Sprintf("%s-%d", node.Kind, node.ID)
		}
		taken["node:"+name] = true
		nodeNames[node.ID] = name

		spec := NodeSpec{Name: name}
		switch node.Kind {
		case network.KindStep:
			spec.Kind = KindStep
			spec.Machine = node.Machine
			spec.Rate = node.Rate
			spec.Recipe = recipeName(doc, node.Recipe, recipeNames, taken)
		case network.KindBuffer:
			spec.Kind = KindBuffer
			if len(node.Flow) > 0 {
				spec.Flow = make(map[recipe.Item]float64, len(node.Flow))
				for item, flow := range node.Flow {
					spec.Flow[item] = flow
				}
			}
		}
		doc.Nodes = append(doc.Nodes, spec)
	}

	for _, node := range net.Nodes() {
		items := make([]recipe.Item, 0, len(node.Push))
		for item := range node.Push {
			items = append(items, item)
		}
		sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
		for _, item := range items {
			for _, to := range node.Push[item] {
				doc.Connections = append(doc.Connections, ConnectionSpec{
					From: nodeNames[node.ID],
					To:   nodeNames[to],
					Item: item,
				})
			}
		}
	}
	return doc
}

func recipeName(doc *Document, r *recipe.Recipe, names map[*recipe.Recipe]string, taken map[string]bool) string {
	if name, ok := names[r]; ok {
		return name
	}
	name := r.Name
	for i := len(doc.Recipes) + 1; name == "" || taken["recipe:"+name]; i++ {
		name = fmt.Sprintf("recipe-%d", i)
	}
	taken["recipe:"+name] = true
	names[r] = name
	doc.Recipes = append(doc.Recipes, RecipeSpec{
		Name:     name,
		Consume:  r.Consume,
		Produce:  r.Produce,
		Duration: r.Duration,
		Power:    r.Power,
	})
	return name
}
