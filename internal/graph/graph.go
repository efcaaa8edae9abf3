// Package graph models the dependency closure of discovered resources and
// builds it by breadth-first expansion from a seed.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/imamik/teardown/internal/resource"
)

// Edge states that From must be deleted (or detached) before To can be
// deleted. Edges are derived during expansion, never supplied by the caller.
type Edge struct {
	From resource.Key
	To   resource.Key
}

func (e Edge) String() string { return fmt.Sprintf("%s -> %s", e.From, e.To) }

// Graph is the set of discovered resources plus their deletion-precedence
// edges. It is read-only after Build returns and safe for concurrent use.
type Graph struct {
	handles map[resource.Key]resource.Handle
	edges   map[Edge]struct{}
	out     map[resource.Key][]resource.Key
}

func newGraph() *Graph {
	return &Graph{
		handles: make(map[resource.Key]resource.Handle),
		edges:   make(map[Edge]struct{}),
		out:     make(map[resource.Key][]resource.Key),
	}
}

func (g *Graph) addHandle(h resource.Handle) bool {
	if _, ok := g.handles[h.Key()]; ok {
		return false
	}
	g.handles[h.Key()] = h
	return true
}

func (g *Graph) addEdge(e Edge) {
	if e.From == e.To {
		return
	}
	if _, ok := g.edges[e]; ok {
		return
	}
	g.edges[e] = struct{}{}
	g.out[e.From] = append(g.out[e.From], e.To)
}

// Len returns the number of resources in the graph.
func (g *Graph) Len() int { return len(g.handles) }

// Contains reports whether the graph holds a resource with the given key.
func (g *Graph) Contains(k resource.Key) bool {
	_, ok := g.handles[k]
	return ok
}

// Handle returns the handle stored for the key.
func (g *Graph) Handle(k resource.Key) (resource.Handle, bool) {
	h, ok := g.handles[k]
	return h, ok
}

// Handles returns all handles sorted by key for deterministic iteration.
func (g *Graph) Handles() []resource.Handle {
	out := make([]resource.Handle, 0, len(g.handles))
	for _, h := range g.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind.Rank() < out[j].Kind.Rank()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Edges returns all edges sorted for deterministic iteration.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From.String() < out[j].From.String()
		}
		return out[i].To.String() < out[j].To.String()
	})
	return out
}

// Dependents returns every resource transitively reachable from k along
// precedence edges, i.e. everything whose deletion must wait for k.
func (g *Graph) Dependents(k resource.Key) []resource.Key {
	seen := map[resource.Key]bool{k: true}
	stack := []resource.Key{k}
	var deps []resource.Key
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.out[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			deps = append(deps, next)
			stack = append(stack, next)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].String() < deps[j].String() })
	return deps
}

// validateAcyclic runs Kahn's algorithm over the edge set and returns the
// keys left with unresolved in-degree when a cycle exists.
func (g *Graph) validateAcyclic() []resource.Key {
	indeg := make(map[resource.Key]int, len(g.handles))
	for k := range g.handles {
		indeg[k] = 0
	}
	for e := range g.edges {
		indeg[e.To]++
	}

	var ready []resource.Key
	for k, d := range indeg {
		if d == 0 {
			ready = append(ready, k)
		}
	}

	processed := 0
	for len(ready) > 0 {
		cur := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		processed++
		for _, next := range g.out[cur] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if processed == len(g.handles) {
		return nil
	}
	var cyclic []resource.Key
	for k, d := range indeg {
		if d > 0 {
			cyclic = append(cyclic, k)
		}
	}
	sort.Slice(cyclic, func(i, j int) bool { return cyclic[i].String() < cyclic[j].String() })
	return cyclic
}

// CycleDetectedError reports a dependency cycle among discovered resources.
// The provider's resource model is acyclic, so a cycle always indicates bad
// data and is never silently broken.
type CycleDetectedError struct {
	Keys []resource.Key
}

func (e *CycleDetectedError) Error() string {
	parts := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		parts[i] = k.String()
	}
	return fmt.Sprintf("dependency cycle detected involving: %s", strings.Join(parts, ", "))
}
