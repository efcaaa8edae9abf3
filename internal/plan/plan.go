// Package plan turns a resource graph into ordered deletion phases.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/imamik/teardown/internal/graph"
	"github.com/imamik/teardown/internal/resource"
)

// Mode selects whether a plan will be executed or only reported.
// It never changes the shape of the plan itself.
type Mode string

const (
	DryRun  Mode = "dry-run"
	Execute Mode = "execute"
)

// Phase is a set of resources that are mutually independent and may be
// deleted in any order, or concurrently, once all earlier phases finished.
type Phase []resource.Handle

// Plan is an ordered sequence of deletion phases derived from a graph.
// Building a plan is pure: the same graph always yields the same plan.
type Plan struct {
	Mode   Mode
	Phases []Phase
}

// Size returns the total number of resources across all phases.
func (p Plan) Size() int {
	n := 0
	for _, ph := range p.Phases {
		n += len(ph)
	}
	return n
}

// PhaseOf returns the index of the phase containing the key, or -1.
func (p Plan) PhaseOf(k resource.Key) int {
	for i, ph := range p.Phases {
		for _, h := range ph {
			if h.Key() == k {
				return i
			}
		}
	}
	return -1
}

// Build layers the graph with Kahn's algorithm: each phase is the set of
// resources whose remaining in-degree is zero, removed together. Within a
// phase, handles are sorted by kind rank then id so that identical graphs
// always render identically.
//
// The graph builder already rejects cyclic closures; Build re-validates
// independently and fails with UnsatisfiablePlanError rather than trusting
// its input.
func Build(g *graph.Graph, mode Mode) (Plan, error) {
	indeg := make(map[resource.Key]int, g.Len())
	for _, h := range g.Handles() {
		indeg[h.Key()] = 0
	}
	for _, e := range g.Edges() {
		indeg[e.To]++
	}

	p := Plan{Mode: mode}
	remaining := g.Len()

	for remaining > 0 {
		var phase Phase
		for k, d := range indeg {
			if d != 0 {
				continue
			}
			h, ok := g.Handle(k)
			if !ok {
				continue
			}
			phase = append(phase, h)
		}
		if len(phase) == 0 {
			var stuck []resource.Key
			for k, d := range indeg {
				if d > 0 {
					stuck = append(stuck, k)
				}
			}
			sort.Slice(stuck, func(i, j int) bool { return stuck[i].String() < stuck[j].String() })
			return Plan{}, &UnsatisfiablePlanError{Keys: stuck}
		}

		sort.Slice(phase, func(i, j int) bool {
			if phase[i].Kind != phase[j].Kind {
				return phase[i].Kind.Rank() < phase[j].Kind.Rank()
			}
			return phase[i].ID < phase[j].ID
		})

		for _, h := range phase {
			delete(indeg, h.Key())
		}
		// Decrement in-degrees for edges leaving the removed phase.
		for _, h := range phase {
			for _, e := range g.Edges() {
				if e.From == h.Key() {
					if _, ok := indeg[e.To]; ok {
						indeg[e.To]--
					}
				}
			}
		}

		p.Phases = append(p.Phases, phase)
		remaining -= len(phase)
	}

	return p, nil
}

// UnsatisfiablePlanError reports that no valid deletion ordering exists
// because the graph contains a cycle.
type UnsatisfiablePlanError struct {
	Keys []resource.Key
}

func (e *UnsatisfiablePlanError) Error() string {
	parts := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		parts[i] = k.String()
	}
	return fmt.Sprintf("no valid deletion order: cycle among %s", strings.Join(parts, ", "))
}
