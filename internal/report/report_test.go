package report

import (
	"context"
	"strings"
	"testing"

	"github.com/imamik/teardown/internal/aws"
	"github.com/imamik/teardown/internal/engine"
	"github.com/imamik/teardown/internal/graph"
	"github.com/imamik/teardown/internal/plan"
	"github.com/imamik/teardown/internal/resource"
)

type fixtureDirectory struct {
	handles []resource.Handle
	edges   []graph.Edge
}

func (f *fixtureDirectory) Resolve(_ context.Context, _ string) (resource.Handle, error) {
	return f.handles[0], nil
}

func (f *fixtureDirectory) Expand(_ context.Context, h resource.Handle) ([]resource.Handle, []graph.Edge, error) {
	if h.Key() != f.handles[0].Key() {
		return nil, nil, nil
	}
	return f.handles[1:], f.edges, nil
}

func fixturePlan(t *testing.T, mode plan.Mode) (plan.Plan, *graph.Graph) {
	t.Helper()

	instance := resource.Handle{Kind: resource.KindInstance, ID: "i-0abc", Region: "eu-central-1"}
	subnet := resource.Handle{Kind: resource.KindSubnet, ID: "subnet-1", Region: "eu-central-1"}
	vpc := resource.Handle{Kind: resource.KindVpc, ID: "vpc-1", Region: "eu-central-1"}

	dir := &fixtureDirectory{
		handles: []resource.Handle{instance, subnet, vpc},
		edges: []graph.Edge{
			{From: instance.Key(), To: subnet.Key()},
			{From: instance.Key(), To: vpc.Key()},
			{From: subnet.Key(), To: vpc.Key()},
		},
	}
	g, err := graph.Build(context.Background(), dir, "i-0abc")
	if err != nil {
		t.Fatalf("Building fixture graph: %v", err)
	}
	p, err := plan.Build(g, mode)
	if err != nil {
		t.Fatalf("Building fixture plan: %v", err)
	}
	return p, g
}

func TestPlan_DryRun(t *testing.T) {
	t.Parallel()

	p, _ := fixturePlan(t, plan.DryRun)
	out := New(false).Plan(p)

	if !strings.Contains(out, "Deletion plan: 3 resources in 3 phases (dry run)") {
		t.Errorf("Expected the header with counts, got:\n%s", out)
	}
	for _, want := range []string{"Phase 1", "Phase 2", "Phase 3", "i-0abc", "subnet-1", "vpc-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in the plan output, got:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "Re-run with --execute to apply.") {
		t.Errorf("Expected the dry-run footer, got:\n%s", out)
	}

	// Phase order must follow the plan.
	if strings.Index(out, "i-0abc") > strings.Index(out, "vpc-1") {
		t.Error("Expected the instance listed before the VPC")
	}
}

func TestPlan_ExecuteModeHasNoDryRunFooter(t *testing.T) {
	t.Parallel()

	p, _ := fixturePlan(t, plan.Execute)
	out := New(false).Plan(p)

	if strings.Contains(out, "dry run") {
		t.Errorf("Expected no dry-run marker in execute mode, got:\n%s", out)
	}
}

func TestResult_Simulated(t *testing.T) {
	t.Parallel()

	p, g := fixturePlan(t, plan.DryRun)
	res := engine.Execute(context.Background(), p, g, aws.NewSimulator(), engine.Options{})

	out := New(false).Result(p, res)

	if !strings.Contains(out, "deleted=0 simulated=3 skipped=0 failed=0") {
		t.Errorf("Expected the summary counts, got:\n%s", out)
	}
	if !strings.Contains(out, "run: simulated") {
		t.Errorf("Expected the run status line, got:\n%s", out)
	}
	if strings.Count(out, "simulated") < 3 {
		t.Errorf("Expected every resource labelled simulated, got:\n%s", out)
	}
}

func TestResult_Executed(t *testing.T) {
	t.Parallel()

	p, g := fixturePlan(t, plan.Execute)
	res := engine.Execute(context.Background(), p, g, aws.NewSimulator(), engine.Options{})

	out := New(false).Result(p, res)

	if !strings.Contains(out, "deleted=3 simulated=0 skipped=0 failed=0") {
		t.Errorf("Expected the summary counts, got:\n%s", out)
	}
	if !strings.Contains(out, "run: succeeded") {
		t.Errorf("Expected the run status line, got:\n%s", out)
	}
}

func TestResult_CancelledShowsPending(t *testing.T) {
	t.Parallel()

	p, g := fixturePlan(t, plan.Execute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := engine.Execute(ctx, p, g, aws.NewSimulator(), engine.Options{})

	out := New(false).Result(p, res)

	if !strings.Contains(out, "pending") {
		t.Errorf("Expected unfinished resources shown as pending, got:\n%s", out)
	}
	if !strings.Contains(out, "pending=3") {
		t.Errorf("Expected the pending count in the summary, got:\n%s", out)
	}
	if !strings.Contains(out, "run: cancelled") {
		t.Errorf("Expected the cancelled status, got:\n%s", out)
	}
}

func TestNew_PlainOutputHasNoEscapes(t *testing.T) {
	t.Parallel()

	p, _ := fixturePlan(t, plan.DryRun)
	out := New(false).Plan(p)

	if strings.Contains(out, "\x1b[") {
		t.Error("Expected no ANSI escapes in plain output")
	}
}
