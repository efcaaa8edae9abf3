package graph

import (
	"context"
	"fmt"

	"github.com/imamik/teardown/internal/resource"
)

// Directory resolves a seed into a handle and expands a handle into its
// directly related resources. Implemented by the discovery package.
type Directory interface {
	Resolve(ctx context.Context, seed string) (resource.Handle, error)
	Expand(ctx context.Context, h resource.Handle) ([]resource.Handle, []Edge, error)
}

// Build assembles the dependency closure reachable from seed.
//
// Expansion is breadth-first: every newly discovered handle joins the
// frontier exactly once, keyed by (kind, id), and the walk stops at the
// fixed point where expansion yields nothing new. Edges may reference
// handles discovered in the same expansion step.
func Build(ctx context.Context, dir Directory, seed string) (*Graph, error) {
	root, err := dir.Resolve(ctx, seed)
	if err != nil {
		return nil, err
	}

	g := newGraph()
	g.addHandle(root)
	frontier := []resource.Handle{root}

	for len(frontier) > 0 {
		var next []resource.Handle
		for _, h := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			related, edges, err := dir.Expand(ctx, h)
			if err != nil {
				return nil, fmt.Errorf("expanding %s: %w", h.Key(), err)
			}
			for _, r := range related {
				if g.addHandle(r) {
					next = append(next, r)
				}
			}
			for _, e := range edges {
				g.addEdge(e)
			}
		}
		frontier = next
	}

	// Every edge endpoint must be a discovered handle; drop edges to
	// resources the directory mentioned but never returned.
	for e := range g.edges {
		if !g.Contains(e.From) || !g.Contains(e.To) {
			delete(g.edges, e)
		}
	}
	g.rebuildAdjacency()

	if cyclic := g.validateAcyclic(); cyclic != nil {
		return nil, &CycleDetectedError{Keys: cyclic}
	}
	return g, nil
}

func (g *Graph) rebuildAdjacency() {
	g.out = make(map[resource.Key][]resource.Key, len(g.handles))
	for e := range g.edges {
		g.out[e.From] = append(g.out[e.From], e.To)
	}
}
