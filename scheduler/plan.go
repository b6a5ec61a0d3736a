package scheduler

import (
	"context"
	"fmt"

	"github.com/weavemesh/weave/workflow"
)

// ReceiptLookup is the read handle the scheduler needs from the receipt
// store: a lookup by instruction-CID. Satisfied by receiptstore.Store.
type ReceiptLookup interface {
	GetReceipt(ctx context.Context, instructionCID string) (workflow.Receipt, bool, error)
}

// FetchFunc resolves a set of URL resources to their bytes, pre-warming the
// resource cache before execution begins (spec.md §4.2 step 5).
type FetchFunc func(ctx context.Context, resources []workflow.Resource) (map[string][]byte, error)

// PlannedNode decorates a Node with whether it is already satisfied by an
// existing receipt.
type PlannedNode struct {
	Node
	Satisfied bool
	Receipt   *workflow.Receipt
}

// TaskPlan is the scheduler's output: an ordering of batches already split
// between replay (Ran) and execution (Run) work (spec.md §4.2).
type TaskPlan struct {
	Ran        [][]PlannedNode
	Run        [][]PlannedNode
	ResumeStep int
}

// BuildPlan computes the ExecutionGraph for w and the TaskPlan driving its
// execution, consulting store for already-committed receipts and fetch for
// resources referenced by the unsatisfied portion of the plan.
func BuildPlan(ctx context.Context, w workflow.Workflow, store ReceiptLookup, fetch FetchFunc) (*ExecutionGraph, *TaskPlan, error) {
	graph, err := BuildGraph(w)
	if err != nil {
		return nil, nil, err
	}
	layers, err := graph.Layers()
	if err != nil {
		return nil, nil, err
	}

	plannedLayers := make([][]PlannedNode, len(layers))
	for i, layer := range layers {
		planned := make([]PlannedNode, len(layer))
		for j, n := range layer {
			r, found, err := store.GetReceipt(ctx, n.InstructionCID.String())
			if err != nil {
				return nil, nil, fmt.Errorf("scheduler: receipt lookup for %s: %w", n.InstructionCID, err)
			}
			pn := PlannedNode{Node: n, Satisfied: found}
			if found {
				pn.Receipt = &r
			}
			planned[j] = pn
		}
		plannedLayers[i] = planned
	}

	plan := &TaskPlan{}
	splitAt := len(plannedLayers)
	for i, layer := range plannedLayers {
		if !layerFullySatisfied(layer) {
			splitAt = i
			break
		}
	}
	plan.Ran = plannedLayers[:splitAt]
	plan.Run = plannedLayers[splitAt:]
	plan.ResumeStep = splitAt

	if fetch != nil && len(plan.Run) > 0 {
		urls := collectUnfetchedURLResources(plan.Run)
		if len(urls) > 0 {
			if _, err := fetch(ctx, urls); err != nil {
				return nil, nil, &ResourceUnavailable{Resource: "wasm modules", Cause: err}
			}
		}
	}

	return graph, plan, nil
}

func layerFullySatisfied(layer []PlannedNode) bool {
	for _, n := range layer {
		if !n.Satisfied {
			return false
		}
	}
	return true
}

// collectUnfetchedURLResources gathers the distinct URL-addressed resources
// referenced by the nodes that still need to execute.
func collectUnfetchedURLResources(runLayers [][]PlannedNode) []workflow.Resource {
	seen := map[string]bool{}
	var out []workflow.Resource
	for _, layer := range runLayers {
		for _, n := range layer {
			if n.Satisfied {
				continue
			}
			r := n.Task.Run.Resource
			if r.Kind != workflow.ResourceURL {
				continue
			}
			if seen[r.String()] {
				continue
			}
			seen[r.String()] = true
			out = append(out, r)
		}
	}
	return out
}
