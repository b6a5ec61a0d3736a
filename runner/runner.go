// Package runner supervises worker runs: one Worker per RunWorkflow call,
// a registry of in-flight runs keyed by workflow CID, graceful shutdown,
// and a subscription hook for receipt notifications (spec.md §2 "Runner",
// supplementing the distilled spec with the multi-workflow bookkeeping a
// long-lived process needs). Grounded on the teacher's graph.Engine as the
// shape of a single orchestrating owner over many runs, generalized from
// one engine-per-process to one worker goroutine per workflow.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/eventhandler"
	"github.com/weavemesh/weave/linkmap"
	"github.com/weavemesh/weave/receiptstore"
	"github.com/weavemesh/weave/scheduler"
	"github.com/weavemesh/weave/telemetry"
	"github.com/weavemesh/weave/wasmrun"
	"github.com/weavemesh/weave/worker"
	"github.com/weavemesh/weave/workflow"
)

// Config bundles the process-singleton collaborators every worker a Runner
// spawns will share.
type Config struct {
	Store     receiptstore.Store
	Evaluator wasmrun.Evaluator
	Network   *eventhandler.Handler
	Emitter   telemetry.Emitter
	Fetch     scheduler.FetchFunc
}

// ReceiptNotification is delivered to a workflow's subscribers each time a
// freshly executed receipt is captured. Replayed receipts are not delivered,
// so Replayed is always false.
type ReceiptNotification struct {
	WorkflowCID    cid.Cid
	InstructionCID cid.Cid
	Replayed       bool
}

type run struct {
	done chan struct{} // closed when the worker goroutine returns
	err  error
	info *workflow.Info

	mu   sync.Mutex
	subs []chan ReceiptNotification
}

// Runner owns the registry of in-flight and completed workflow runs.
type Runner struct {
	cfg Config

	mu   sync.Mutex
	runs map[cid.Cid]*run
}

// New constructs a Runner.
func New(cfg Config) *Runner {
	if cfg.Emitter == nil {
		cfg.Emitter = telemetry.NullEmitter{}
	}
	return &Runner{cfg: cfg, runs: make(map[cid.Cid]*run)}
}

// RunWorkflow starts w's execution as a new worker goroutine, returning
// immediately with the workflow's CID. A second RunWorkflow call for the
// same workflow CID while one is already in flight returns the existing
// run's handle instead of starting a duplicate (spec.md §4.3 "a workflow
// is identified by its own CID; restarting it resumes, not duplicates").
func (r *Runner) RunWorkflow(ctx context.Context, w workflow.Workflow, name string) (cid.Cid, error) {
	wfCID, err := w.CID()
	if err != nil {
		return cid.Cid{}, fmt.Errorf("runner: workflow cid: %w", err)
	}

	r.mu.Lock()
	if existing, ok := r.runs[wfCID]; ok && !isDone(existing) {
		r.mu.Unlock()
		return wfCID, nil
	}
	rn := &run{done: make(chan struct{})}
	r.runs[wfCID] = rn
	r.mu.Unlock()

	graph, plan, err := scheduler.BuildPlan(ctx, w, r.cfg.Store, r.cfg.Fetch)
	if err != nil {
		rn.err = err
		close(rn.done)
		return wfCID, err
	}

	resources := linkmap.NewResourceCache()
	if r.cfg.Fetch != nil {
		if fetched, err := r.cfg.Fetch(ctx, collectResources(graph)); err == nil {
			resources.PutAll(fetched)
		}
	}

	wk := worker.New(worker.Config{
		Store:     r.cfg.Store,
		Resources: resources,
		Evaluator: r.cfg.Evaluator,
		Network:   r.cfg.Network,
		Emitter:   telemetry.Fanout{Emitters: []telemetry.Emitter{r.cfg.Emitter, &runNotifier{runner: r, workflowCID: wfCID}}},
	})

	go func() {
		defer close(rn.done)
		info, err := wk.Run(ctx, wfCID, graph, plan, name)
		rn.info, rn.err = info, err
	}()

	return wfCID, nil
}

// collectResources flattens an ExecutionGraph's IndexedResources into a
// single distinct list, used to pre-warm the resource cache for a fresh run.
func collectResources(graph *scheduler.ExecutionGraph) []workflow.Resource {
	seen := map[string]bool{}
	var out []workflow.Resource
	for _, resources := range graph.IndexedResources {
		for _, r := range resources {
			if seen[r.String()] {
				continue
			}
			seen[r.String()] = true
			out = append(out, r)
		}
	}
	return out
}

func isDone(r *run) bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until workflowCID's run finishes (or ctx is cancelled),
// returning its final WorkflowInfo and any execution error.
func (r *Runner) Wait(ctx context.Context, workflowCID cid.Cid) (*workflow.Info, error) {
	r.mu.Lock()
	rn, ok := r.runs[workflowCID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("runner: no run registered for %s", workflowCID)
	}
	select {
	case <-rn.done:
		return rn.info, rn.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe returns a channel receiving a ReceiptNotification for every
// receipt captured during workflowCID's run after Subscribe is called,
// buffered so a slow subscriber never blocks the worker; receipts captured
// earlier are not delivered. The channel is closed when the run completes.
func (r *Runner) Subscribe(workflowCID cid.Cid) (<-chan ReceiptNotification, error) {
	r.mu.Lock()
	rn, ok := r.runs[workflowCID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("runner: no run registered for %s", workflowCID)
	}

	ch := make(chan ReceiptNotification, 32)
	rn.mu.Lock()
	rn.subs = append(rn.subs, ch)
	rn.mu.Unlock()

	go func() {
		<-rn.done
		rn.mu.Lock()
		close(ch)
		rn.mu.Unlock()
	}()

	return ch, nil
}

// GetNodeInfo asks the shared event handler for a swarm snapshot, used to
// answer the external `node` inspection surface (spec.md §6).
func (r *Runner) GetNodeInfo(ctx context.Context) (eventhandler.NodeInfo, error) {
	if r.cfg.Network == nil {
		return eventhandler.NodeInfo{}, fmt.Errorf("runner: no network configured")
	}
	reply := make(chan eventhandler.NodeInfo, 1)
	if err := r.cfg.Network.Submit(ctx, eventhandler.GetNodeInfo{Reply: reply}); err != nil {
		return eventhandler.NodeInfo{}, err
	}
	select {
	case info := <-reply:
		return info, nil
	case <-ctx.Done():
		return eventhandler.NodeInfo{}, ctx.Err()
	}
}

// Shutdown asks the event handler to exit its loop and blocks until it
// acknowledges (spec.md §5 "Shutdown").
func (r *Runner) Shutdown(ctx context.Context) error {
	if r.cfg.Network == nil {
		return nil
	}
	done := make(chan struct{})
	if err := r.cfg.Network.Submit(ctx, eventhandler.Shutdown{Done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runNotifier is a telemetry.Emitter adapter that fans captured-receipt
// events out to a run's Subscribe channels, letting the worker stay unaware
// that anyone outside it is watching. Other event kinds are ignored.
type runNotifier struct {
	runner      *Runner
	workflowCID cid.Cid
}

func (n *runNotifier) Emit(event telemetry.Event) {
	switch event.Kind {
	case telemetry.KindCapturedReceipt:
		insCID, _ := event.Meta["instruction_cid"].(string)
		c, err := cid.Decode(insCID)
		if err != nil {
			return
		}
		n.broadcast(ReceiptNotification{WorkflowCID: n.workflowCID, InstructionCID: c})
	}
}

func (n *runNotifier) broadcast(notif ReceiptNotification) {
	n.runner.mu.Lock()
	rn, ok := n.runner.runs[n.workflowCID]
	n.runner.mu.Unlock()
	if !ok {
		return
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	for _, ch := range rn.subs {
		select {
		case ch <- notif:
		default:
		}
	}
}

func (n *runNotifier) EmitBatch(_ context.Context, events []telemetry.Event) error {
	for _, e := range events {
		n.Emit(e)
	}
	return nil
}

func (n *runNotifier) Flush(context.Context) error { return nil }
