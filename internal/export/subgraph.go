// Package export renders the neighbourhood of a node as a Mermaid diagram
// or a JSON document.
package export

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dusk-indust/netgraph/internal/graph"
)

// MaxDepth bounds how far an export walks from its root.
const MaxDepth = 5

// Subgraph is the set of nodes within some hops of a root node and the
// relationships joining them.
type Subgraph struct {
	Root          int64                      `json:"root"`
	Depth         int                        `json:"depth"`
	Nodes         []graph.NodeBundle         `json:"nodes"`
	Relationships []graph.RelationshipBundle `json:"relationships"`
}

// Collect walks relationships in both directions from handle, breadth
// first, up to depth hops. Nodes are ordered by handle and relationships by
// id.
func Collect(ctx context.Context, g *graph.Graph, handle int64, depth int) (*Subgraph, error) {
	if depth < 0 || depth > MaxDepth {
		return nil, fmt.Errorf("depth must be between 0 and %d, got %d", MaxDepth, depth)
	}
	root, err := g.GetNode(ctx, handle)
	if err != nil {
		return nil, err
	}

	nodes := map[int64]graph.NodeBundle{handle: *root}
	rels := make(map[graph.RelationshipID]graph.RelationshipBundle)
	frontier := []int64{handle}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []int64
		for _, h := range frontier {
			nbs, err := g.Neighbors(ctx, h, graph.DirectionBoth)
			if err != nil {
				return nil, fmt.Errorf("neighbours of %d: %w", h, err)
			}
			for _, nb := range nbs {
				rels[nb.Relationship.ID] = nb.Relationship
				other := nb.Node.Handle()
				if _, seen := nodes[other]; !seen {
					nodes[other] = nb.Node
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	sg := &Subgraph{
		Root:          handle,
		Depth:         depth,
		Nodes:         make([]graph.NodeBundle, 0, len(nodes)),
		Relationships: make([]graph.RelationshipBundle, 0, len(rels)),
	}
	for _, n := range nodes {
		sg.Nodes = append(sg.Nodes, n)
	}
	slices.SortFunc(sg.Nodes, func(a, b graph.NodeBundle) int { return cmp.Compare(a.Handle(), b.Handle()) })

	// The last hop can reach relationships whose far end was never
	// visited; keep only those inside the node set.
	for _, r := range rels {
		_, okStart := nodes[r.Start]
		_, okEnd := nodes[r.End]
		if okStart && okEnd {
			sg.Relationships = append(sg.Relationships, r)
		}
	}
	slices.SortFunc(sg.Relationships, func(a, b graph.RelationshipBundle) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End), cmp.Compare(a.ID, b.ID))
	})
	return sg, nil
}
