package aws

import (
	"context"
	"sync"

	"github.com/imamik/teardown/internal/resource"
)

// CallOp names a mutating provider operation.
type CallOp string

const (
	OpDelete CallOp = "delete"
	OpDetach CallOp = "detach"
)

// Call records one intended mutating operation.
type Call struct {
	Op   CallOp
	Kind resource.Kind
	ID   string
}

// Simulator implements Mutator by recording every intended call and
// mutating nothing. It stands in for the live adapter in dry runs and
// tests.
type Simulator struct {
	mu    sync.Mutex
	calls []Call
}

// NewSimulator creates an empty simulator.
func NewSimulator() *Simulator { return &Simulator{} }

// Delete records the intent and succeeds.
func (s *Simulator) Delete(_ context.Context, h resource.Handle) error {
	s.record(Call{Op: OpDelete, Kind: h.Kind, ID: h.ID})
	return nil
}

// Detach records the intent and succeeds.
func (s *Simulator) Detach(_ context.Context, h resource.Handle) error {
	s.record(Call{Op: OpDetach, Kind: h.Kind, ID: h.ID})
	return nil
}

func (s *Simulator) record(c Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

// Calls returns a copy of the recorded calls in order.
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}
