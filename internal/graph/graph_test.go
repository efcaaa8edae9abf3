package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/imamik/teardown/internal/resource"
)

// fakeDirectory serves canned handles and expansions for graph tests.
type fakeDirectory struct {
	root       resource.Handle
	resolveErr error
	expansions map[resource.Key]expansion
}

type expansion struct {
	related []resource.Handle
	edges   []Edge
	err     error
}

func (f *fakeDirectory) Resolve(_ context.Context, _ string) (resource.Handle, error) {
	if f.resolveErr != nil {
		return resource.Handle{}, f.resolveErr
	}
	return f.root, nil
}

func (f *fakeDirectory) Expand(_ context.Context, h resource.Handle) ([]resource.Handle, []Edge, error) {
	e, ok := f.expansions[h.Key()]
	if !ok {
		return nil, nil, nil
	}
	return e.related, e.edges, e.err
}

func handle(kind resource.Kind, id string) resource.Handle {
	return resource.Handle{Kind: kind, ID: id, Region: "eu-central-1"}
}

func key(kind resource.Kind, id string) resource.Key {
	return resource.Key{Kind: kind, ID: id}
}

func TestBuild_SingleResource(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{root: handle(resource.KindVpc, "vpc-1")}

	g, err := Build(context.Background(), dir, "vpc-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if g.Len() != 1 {
		t.Errorf("Expected 1 handle, got: %d", g.Len())
	}
	if !g.Contains(key(resource.KindVpc, "vpc-1")) {
		t.Error("Expected the seed handle in the graph")
	}
	if len(g.Edges()) != 0 {
		t.Errorf("Expected no edges, got: %d", len(g.Edges()))
	}
}

func TestBuild_ExpandsToFixedPoint(t *testing.T) {
	t.Parallel()

	instance := handle(resource.KindInstance, "i-1")
	vpc := handle(resource.KindVpc, "vpc-1")
	subnet := handle(resource.KindSubnet, "subnet-1")

	dir := &fakeDirectory{
		root: instance,
		expansions: map[resource.Key]expansion{
			instance.Key(): {
				related: []resource.Handle{vpc},
				edges:   []Edge{{From: instance.Key(), To: vpc.Key()}},
			},
			vpc.Key(): {
				// The VPC expansion mentions the instance again; it must
				// not be expanded twice.
				related: []resource.Handle{subnet, instance},
				edges: []Edge{
					{From: subnet.Key(), To: vpc.Key()},
					{From: instance.Key(), To: vpc.Key()},
					{From: instance.Key(), To: subnet.Key()},
				},
			},
		},
	}

	g, err := Build(context.Background(), dir, "i-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if g.Len() != 3 {
		t.Errorf("Expected 3 handles, got: %d", g.Len())
	}
	if len(g.Edges()) != 3 {
		t.Errorf("Expected 3 distinct edges, got: %d", len(g.Edges()))
	}
}

func TestBuild_ResolveErrorPassesThrough(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("no such seed")
	dir := &fakeDirectory{resolveErr: wantErr}

	_, err := Build(context.Background(), dir, "i-missing")
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected resolve error, got: %v", err)
	}
}

func TestBuild_ExpandErrorNamesResource(t *testing.T) {
	t.Parallel()

	instance := handle(resource.KindInstance, "i-1")
	dir := &fakeDirectory{
		root: instance,
		expansions: map[resource.Key]expansion{
			instance.Key(): {err: errors.New("throttled")},
		},
	}

	_, err := Build(context.Background(), dir, "i-1")
	if err == nil {
		t.Fatal("Expected expansion error, got nil")
	}
	if got := err.Error(); got != "expanding instance/i-1: throttled" {
		t.Errorf("Unexpected error text: %q", got)
	}
}

func TestBuild_DropsEdgesToUndiscoveredResources(t *testing.T) {
	t.Parallel()

	instance := handle(resource.KindInstance, "i-1")
	dir := &fakeDirectory{
		root: instance,
		expansions: map[resource.Key]expansion{
			instance.Key(): {
				// Edge to a resource that was never returned as a handle.
				edges: []Edge{{From: instance.Key(), To: key(resource.KindVpc, "vpc-ghost")}},
			},
		},
	}

	g, err := Build(context.Background(), dir, "i-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(g.Edges()) != 0 {
		t.Errorf("Expected dangling edge to be dropped, got: %v", g.Edges())
	}
}

func TestBuild_CycleDetected(t *testing.T) {
	t.Parallel()

	a := handle(resource.KindSubnet, "subnet-a")
	b := handle(resource.KindSubnet, "subnet-b")

	dir := &fakeDirectory{
		root: a,
		expansions: map[resource.Key]expansion{
			a.Key(): {
				related: []resource.Handle{b},
				edges: []Edge{
					{From: a.Key(), To: b.Key()},
					{From: b.Key(), To: a.Key()},
				},
			},
		},
	}

	_, err := Build(context.Background(), dir, "subnet-a")
	var cycleErr *CycleDetectedError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("Expected CycleDetectedError, got: %v", err)
	}
	if len(cycleErr.Keys) != 2 {
		t.Errorf("Expected both keys reported, got: %v", cycleErr.Keys)
	}
}

func TestBuild_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := &fakeDirectory{root: handle(resource.KindVpc, "vpc-1")}
	_, err := Build(ctx, dir, "vpc-1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestGraph_Dependents(t *testing.T) {
	t.Parallel()

	instance := handle(resource.KindInstance, "i-1")
	subnet := handle(resource.KindSubnet, "subnet-1")
	vpc := handle(resource.KindVpc, "vpc-1")
	sg := handle(resource.KindSecurityGroup, "sg-1")

	dir := &fakeDirectory{
		root: instance,
		expansions: map[resource.Key]expansion{
			instance.Key(): {
				related: []resource.Handle{subnet, vpc, sg},
				edges: []Edge{
					{From: instance.Key(), To: subnet.Key()},
					{From: instance.Key(), To: sg.Key()},
					{From: subnet.Key(), To: vpc.Key()},
					{From: sg.Key(), To: vpc.Key()},
				},
			},
		},
	}

	g, err := Build(context.Background(), dir, "i-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	deps := g.Dependents(instance.Key())
	if len(deps) != 3 {
		t.Fatalf("Expected 3 transitive dependents, got: %v", deps)
	}
	// The VPC is reachable through two paths but reported once.
	seen := map[resource.Key]bool{}
	for _, d := range deps {
		if seen[d] {
			t.Errorf("Dependent %v reported twice", d)
		}
		seen[d] = true
	}
	if !seen[vpc.Key()] {
		t.Error("Expected the VPC among transitive dependents")
	}

	if got := g.Dependents(vpc.Key()); len(got) != 0 {
		t.Errorf("Expected the VPC to have no dependents, got: %v", got)
	}
}

func TestGraph_HandlesSortedDeterministically(t *testing.T) {
	t.Parallel()

	vpc := handle(resource.KindVpc, "vpc-1")
	s2 := handle(resource.KindSubnet, "subnet-2")
	s1 := handle(resource.KindSubnet, "subnet-1")
	cluster := handle(resource.KindCluster, "prod")

	dir := &fakeDirectory{
		root: vpc,
		expansions: map[resource.Key]expansion{
			vpc.Key(): {related: []resource.Handle{s2, s1, cluster}},
		},
	}

	g, err := Build(context.Background(), dir, "vpc-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	handles := g.Handles()
	want := []resource.Key{cluster.Key(), s1.Key(), s2.Key(), vpc.Key()}
	for i, h := range handles {
		if h.Key() != want[i] {
			t.Errorf("Position %d: expected %v, got %v", i, want[i], h.Key())
		}
	}
}
