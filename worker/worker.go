package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/eventhandler"
	"github.com/weavemesh/weave/ipld"
	"github.com/weavemesh/weave/linkmap"
	"github.com/weavemesh/weave/receiptstore"
	"github.com/weavemesh/weave/scheduler"
	"github.com/weavemesh/weave/telemetry"
	"github.com/weavemesh/weave/wasmrun"
	"github.com/weavemesh/weave/workflow"
)

// Config bundles the collaborators a Worker needs to drive one workflow run
// (spec.md §4.3 "Worker"). Network and Emitter may be nil for a fully local
// single-process run.
type Config struct {
	Store          receiptstore.Store
	Resources      *linkmap.ResourceCache
	Evaluator      wasmrun.Evaluator
	Network        *eventhandler.Handler
	Emitter        telemetry.Emitter
	P2PResolveTimeout time.Duration
	MaxConcurrent  int // per-batch concurrency cap; 0 means unbounded
}

// Worker executes one ExecutionGraph/TaskPlan to completion, committing a
// Receipt per instruction and keeping WorkflowInfo progress current
// (spec.md §4.3).
type Worker struct {
	cfg   Config
	links *linkmap.LinkMap
	res   *resolver
}

// New constructs a Worker. A fresh LinkMap is created per run, since the
// linkmap's lifetime is scoped to one worker (spec.md §4.3: "a worker's
// linkmap lives only as long as its run").
func New(cfg Config) *Worker {
	if cfg.Emitter == nil {
		cfg.Emitter = telemetry.NullEmitter{}
	}
	if cfg.Resources == nil {
		cfg.Resources = linkmap.NewResourceCache()
	}
	links := linkmap.New()
	return &Worker{
		cfg:   cfg,
		links: links,
		res: &resolver{
			links:     links,
			resources: cfg.Resources,
			store:     cfg.Store,
			network:   cfg.Network,
			emitter:   cfg.Emitter,
			timeout:   cfg.P2PResolveTimeout,
		},
	}
}

// batchResult is one node's outcome within a batch, collected on a channel
// the way the teacher's runConcurrent collects nodeResult (graph/engine.go).
type batchResult struct {
	instructionCID cid.Cid
	receipt        workflow.Receipt
	err            error
}

// Run drives graph/plan to completion against workflowCID, returning the
// final WorkflowInfo. Already-satisfied nodes (plan.Ran) are seeded into
// the linkmap and reported once as a ReplayReceipts batch; the remaining
// layers (plan.Run) execute batch by batch, aborting the whole run on the
// first node failure within a batch (spec.md §4.3 steps 1-7).
func (w *Worker) Run(ctx context.Context, workflowCID cid.Cid, graph *scheduler.ExecutionGraph, plan *scheduler.TaskPlan, name string) (*workflow.Info, error) {
	info := workflow.NewInfo(workflowCID, name, len(graph.Nodes), graph.IndexedResources)
	info.AdvanceTo(plan.ResumeStep)

	var replayed []cid.Cid
	for _, layer := range plan.Ran {
		for _, n := range layer {
			if n.Receipt == nil {
				return nil, fmt.Errorf("worker: plan marked %s satisfied with no receipt", n.InstructionCID)
			}
			w.links.Put(n.InstructionCID, n.Receipt.Out)
			receiptCID, err := n.Receipt.CID()
			if err != nil {
				return nil, fmt.Errorf("worker: replayed receipt cid for %s: %w", n.InstructionCID, err)
			}
			info.RecordReceipt(receiptCID)
			replayed = append(replayed, n.InstructionCID)
		}
	}
	if len(replayed) > 0 && w.cfg.Network != nil {
		_ = w.cfg.Network.Submit(ctx, eventhandler.ReplayReceipts{WorkflowCID: workflowCID, InstructionCIDs: replayed})
	}
	if len(replayed) > 0 {
		w.cfg.Emitter.Emit(telemetry.Event{
			Kind:        telemetry.KindReplayReceipts,
			WorkflowCID: workflowCID.String(),
			Meta:        map[string]interface{}{"count": len(replayed)},
		})
	}

	for _, layer := range plan.Run {
		if err := w.runBatch(ctx, workflowCID, layer, info); err != nil {
			return info, err
		}
		if err := w.cfg.Store.PutWorkflowInfo(ctx, info); err != nil {
			return info, fmt.Errorf("worker: persist workflow info: %w", err)
		}
	}

	return info, nil
}

// runBatch executes one layer's nodes concurrently (up to MaxConcurrent),
// committing each successful receipt as it lands and cancelling the whole
// batch on the first error — the same abort-on-first-failure shape as the
// teacher's runConcurrent (graph/engine.go), simplified to one pass per
// layer since this batch has no further routing decisions to make.
func (w *Worker) runBatch(ctx context.Context, workflowCID cid.Cid, layer []scheduler.PlannedNode, info *workflow.Info) error {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := w.cfg.MaxConcurrent
	if limit <= 0 || limit > len(layer) {
		limit = len(layer)
	}
	sem := make(chan struct{}, limit)

	results := make(chan batchResult, len(layer))
	var wg sync.WaitGroup

	for _, node := range layer {
		if node.Satisfied {
			w.links.Put(node.InstructionCID, node.Receipt.Out)
			if receiptCID, err := node.Receipt.CID(); err == nil {
				info.RecordReceipt(receiptCID)
			}
			continue
		}
		wg.Add(1)
		go func(n scheduler.PlannedNode) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			receipt, err := w.executeNode(batchCtx, n)
			results <- batchResult{instructionCID: n.InstructionCID, receipt: receipt, err: err}
		}(node)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		w.links.Put(r.instructionCID, r.receipt.Out)
		if err := w.cfg.Store.PutReceipt(ctx, r.instructionCID.String(), workflowCID.String(), r.receipt); err != nil {
			firstErr = fmt.Errorf("worker: commit receipt for %s: %w", r.instructionCID, err)
			continue
		}
		receiptCID, err := r.receipt.CID()
		if err != nil {
			firstErr = fmt.Errorf("worker: receipt cid for %s: %w", r.instructionCID, err)
			continue
		}
		info.RecordReceipt(receiptCID)
		w.cfg.Emitter.Emit(telemetry.Event{
			Kind:        telemetry.KindCapturedReceipt,
			WorkflowCID: workflowCID.String(),
			Meta:        map[string]interface{}{"instruction_cid": r.instructionCID.String()},
		})
		if w.cfg.Network != nil {
			_ = w.cfg.Network.Submit(ctx, eventhandler.CapturedReceipt{
				InstructionCID: r.instructionCID,
				ReceiptCID:     receiptCID,
				WorkflowCID:    workflowCID,
			})
		}
	}

	return firstErr
}

// executeNode resolves n's dependencies, fetches its module bytes, invokes
// the evaluator, and builds the (uncommitted) receipt for n (spec.md §4.3
// steps 4-6).
func (w *Worker) executeNode(ctx context.Context, n scheduler.PlannedNode) (workflow.Receipt, error) {
	resolved := make(map[cid.Cid]workflow.InstructionResult, len(n.Deps))
	for _, dep := range n.Deps {
		res, err := w.res.resolveCID(ctx, dep.CID)
		if err != nil {
			return workflow.Receipt{}, err
		}
		resolved[dep.CID] = res
	}

	input, err := substitute(n.Task.Run.Input, resolved)
	if err != nil {
		return workflow.Receipt{}, fmt.Errorf("worker: substitute input for %s: %w", n.InstructionCID, err)
	}

	module, ok := w.cfg.Resources.Get(n.Task.Run.Resource)
	if !ok {
		return workflow.Receipt{}, fmt.Errorf("worker: no cached module bytes for resource %s", n.Task.Run.Resource)
	}

	// An Evaluate error is a hard execution failure (missing export, a
	// guest trap, an out-of-bounds memory access) — not a guest-produced
	// InstructionResult. It aborts this node's batch with partial receipts
	// rather than being recorded as a committed Error-tagged receipt
	// (spec.md §4.3, §7 "Unresolved/halts the workflow with partial
	// receipts").
	out, evalErr := w.cfg.Evaluator.Evaluate(ctx, module, n.Task.Run.Op, []ipld.Value{input})
	if evalErr != nil {
		return workflow.Receipt{}, fmt.Errorf("worker: evaluate %s: %w", n.InstructionCID, evalErr)
	}

	invocation := workflow.Invocation{Task: n.Task}
	invocationCID, err := invocation.CID()
	if err != nil {
		return workflow.Receipt{}, fmt.Errorf("worker: invocation cid for %s: %w", n.InstructionCID, err)
	}

	meta := ipld.Map(ipld.MapEntry{Key: "op", Value: ipld.String(n.Task.Run.Op)})
	return workflow.Receipt{Ran: invocationCID, Out: workflow.Ok(out), Meta: meta}, nil
}
