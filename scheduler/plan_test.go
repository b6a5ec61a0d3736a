package scheduler

import (
	"context"
	"testing"

	"github.com/weavemesh/weave/ipld"
	"github.com/weavemesh/weave/workflow"
)

type memLookup struct {
	receipts map[string]workflow.Receipt
}

func newMemLookup() *memLookup { return &memLookup{receipts: map[string]workflow.Receipt{}} }

func (m *memLookup) GetReceipt(ctx context.Context, instructionCID string) (workflow.Receipt, bool, error) {
	r, ok := m.receipts[instructionCID]
	return r, ok, nil
}

func addOneTask(t *testing.T, input ipld.Value) workflow.Task {
	t.Helper()
	return workflow.Task{Run: workflow.Instruction{
		Resource: workflow.ResourceFromURL("https://example.test/add_one.wasm"),
		Op:       workflow.OpWasmRun,
		Input:    input,
	}}
}

func TestBuildGraphLinearDependency(t *testing.T) {
	t1 := addOneTask(t, ipld.List(ipld.Int(1)))
	t1CID, err := t1.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	link := workflow.AwaitedLink{Kind: workflow.AwaitOk, CID: t1CID}
	t2 := addOneTask(t, ipld.List(link.ToValue()))

	w := workflow.Workflow{Tasks: []workflow.Task{t1, t2}}
	graph, err := BuildGraph(w)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if len(graph.Nodes) != 2 || len(graph.Edges) != 1 {
		t.Fatalf("expected 2 nodes 1 edge, got %d nodes %d edges", len(graph.Nodes), len(graph.Edges))
	}

	layers, err := graph.Layers()
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}
	if len(layers) != 2 || len(layers[0]) != 1 || len(layers[1]) != 1 {
		t.Fatalf("expected two single-node layers, got %v", layerSizes(layers))
	}
}

func layerSizes(layers [][]Node) []int {
	sizes := make([]int, len(layers))
	for i, l := range layers {
		sizes[i] = len(l)
	}
	return sizes
}

func TestBuildGraphDanglingAwaitIsMalformed(t *testing.T) {
	bogus, _ := ipld.ComputeCID(ipld.String("nonexistent"))
	link := workflow.AwaitedLink{Kind: workflow.AwaitOk, CID: bogus}
	t1 := addOneTask(t, ipld.List(link.ToValue()))
	w := workflow.Workflow{Tasks: []workflow.Task{t1}}

	_, err := BuildGraph(w)
	if err == nil {
		t.Fatal("expected GraphBuildError for a dangling awaited link")
	}
}

func TestBuildPlanColdRun(t *testing.T) {
	t1 := addOneTask(t, ipld.List(ipld.Int(1)))
	w := workflow.Workflow{Tasks: []workflow.Task{t1}}

	fetched := false
	fetch := func(ctx context.Context, resources []workflow.Resource) (map[string][]byte, error) {
		fetched = true
		out := map[string][]byte{}
		for _, r := range resources {
			out[r.String()] = []byte("wasm-bytes")
		}
		return out, nil
	}

	_, plan, err := BuildPlan(context.Background(), w, newMemLookup(), fetch)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Ran) != 0 {
		t.Errorf("expected no ran batches on a cold run, got %d", len(plan.Ran))
	}
	if len(plan.Run) != 1 || len(plan.Run[0]) != 1 {
		t.Fatalf("expected a single one-node run batch, got %v", plan.Run)
	}
	if !fetched {
		t.Error("expected fetch to be invoked for the unsatisfied node's resource")
	}
	if plan.ResumeStep != 0 {
		t.Errorf("expected resume_step=0 on a cold run, got %d", plan.ResumeStep)
	}
}

func TestBuildPlanWarmReplay(t *testing.T) {
	t1 := addOneTask(t, ipld.List(ipld.Int(1)))
	insCID, err := t1.Run.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	invCID, err := workflow.Invocation{Task: t1}.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	w := workflow.Workflow{Tasks: []workflow.Task{t1}}

	store := newMemLookup()
	store.receipts[insCID.String()] = workflow.Receipt{Ran: invCID, Out: workflow.Ok(ipld.Int(2))}

	_, plan, err := BuildPlan(context.Background(), w, store, nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Ran) != 1 || len(plan.Ran[0]) != 1 {
		t.Fatalf("expected the satisfied node in Ran, got %v", plan.Ran)
	}
	if len(plan.Run) != 0 {
		t.Errorf("expected no run batches on a fully warm workflow, got %d", len(plan.Run))
	}
	if plan.ResumeStep != 1 {
		t.Errorf("expected resume_step=1, got %d", plan.ResumeStep)
	}
}

func TestBuildPlanPartialReplay(t *testing.T) {
	t1 := addOneTask(t, ipld.List(ipld.Int(1)))
	t1CID, err := t1.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	link := workflow.AwaitedLink{Kind: workflow.AwaitOk, CID: t1CID}
	t2 := addOneTask(t, ipld.List(link.ToValue()))
	w := workflow.Workflow{Tasks: []workflow.Task{t1, t2}}

	invCID, err := workflow.Invocation{Task: t1}.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	store := newMemLookup()
	store.receipts[t1CID.String()] = workflow.Receipt{Ran: invCID, Out: workflow.Ok(ipld.Int(2))}

	_, plan, err := BuildPlan(context.Background(), w, store, nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Ran) != 1 {
		t.Fatalf("expected T1's layer in Ran, got %d ran batches", len(plan.Ran))
	}
	if len(plan.Run) != 1 || len(plan.Run[0]) != 1 {
		t.Fatalf("expected T2's layer in Run, got %v", plan.Run)
	}
	if plan.ResumeStep != 1 {
		t.Errorf("expected resume_step=1, got %d", plan.ResumeStep)
	}
}

func TestBuildPlanZeroTaskWorkflow(t *testing.T) {
	w := workflow.Workflow{}
	_, plan, err := BuildPlan(context.Background(), w, newMemLookup(), nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Ran) != 0 || len(plan.Run) != 0 {
		t.Error("expected empty ran and run for a 0-task workflow")
	}
}
