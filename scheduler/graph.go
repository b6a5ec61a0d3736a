package scheduler

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/workflow"
)

// Node is one task invocation in the execution graph.
type Node struct {
	InstructionCID cid.Cid
	Task           workflow.Task
	Deps           []workflow.AwaitedLink // awaited links found in Task.Run.Input
}

// Edge is a dependency edge A -> B: B's input awaits A's instruction-CID.
type Edge struct {
	From cid.Cid
	To   cid.Cid
}

// ExecutionGraph is the DAG produced from a Workflow (spec.md §4.2).
type ExecutionGraph struct {
	Nodes            []Node
	Edges            []Edge
	IndexedResources workflow.IndexedResources
}

// BuildGraph constructs the execution graph for w. Edge A -> B exists iff
// B's input contains an awaited link to A's instruction-CID.
func BuildGraph(w workflow.Workflow) (*ExecutionGraph, error) {
	nodes := make([]Node, 0, len(w.Tasks))
	byInstruction := make(map[cid.Cid]int, len(w.Tasks))
	resources := workflow.IndexedResources{}

	for i, task := range w.Tasks {
		insCID, err := task.Run.CID()
		if err != nil {
			return nil, &GraphBuildError{Reason: fmt.Sprintf("task %d: computing instruction cid", i), Cause: err}
		}
		if _, dup := byInstruction[insCID]; dup {
			return nil, &GraphBuildError{Reason: fmt.Sprintf("duplicate instruction %s", insCID)}
		}
		deps := workflow.CollectAwaitedLinks(task.Run.Input)
		nodes = append(nodes, Node{InstructionCID: insCID, Task: task, Deps: deps})
		byInstruction[insCID] = i

		all := append([]workflow.Resource{task.Run.Resource}, task.Meta.Resources...)
		resources[insCID] = all
	}

	var edges []Edge
	for _, n := range nodes {
		for _, dep := range n.Deps {
			if _, ok := byInstruction[dep.CID]; !ok {
				return nil, &GraphBuildError{
					Reason: fmt.Sprintf("task %s awaits unknown instruction %s", n.InstructionCID, dep.CID),
				}
			}
			edges = append(edges, Edge{From: dep.CID, To: n.InstructionCID})
		}
	}

	return &ExecutionGraph{Nodes: nodes, Edges: edges, IndexedResources: resources}, nil
}

// Layers topologically sorts g into batches of mutually independent nodes
// (Kahn's algorithm), in deterministic order — ties broken by each node's
// position in the original workflow, which preserves insertion order for
// reproducible telemetry (spec.md §4.2 "Tie-breaks").
func (g *ExecutionGraph) Layers() ([][]Node, error) {
	indexOf := make(map[cid.Cid]int, len(g.Nodes))
	for i, n := range g.Nodes {
		indexOf[n.InstructionCID] = i
	}

	indegree := make(map[cid.Cid]int, len(g.Nodes))
	children := make(map[cid.Cid][]cid.Cid, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.InstructionCID] = 0
	}
	for _, e := range g.Edges {
		indegree[e.To]++
		children[e.From] = append(children[e.From], e.To)
	}

	remaining := len(g.Nodes)
	var layers [][]Node

	ready := make([]cid.Cid, 0)
	for _, n := range g.Nodes {
		if indegree[n.InstructionCID] == 0 {
			ready = append(ready, n.InstructionCID)
		}
	}

	for len(ready) > 0 {
		sortByWorkflowOrder(ready, indexOf)

		layer := make([]Node, 0, len(ready))
		var next []cid.Cid
		for _, c := range ready {
			layer = append(layer, g.Nodes[indexOf[c]])
			remaining--
			for _, child := range children[c] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		layers = append(layers, layer)
		ready = next
	}

	if remaining != 0 {
		return nil, ErrCyclicWorkflow
	}
	return layers, nil
}

func sortByWorkflowOrder(cids []cid.Cid, indexOf map[cid.Cid]int) {
	for i := 1; i < len(cids); i++ {
		for j := i; j > 0 && indexOf[cids[j-1]] > indexOf[cids[j]]; j-- {
			cids[j-1], cids[j] = cids[j], cids[j-1]
		}
	}
}
