// Package worker drives one workflow's execution to completion: replaying
// already-satisfied instructions, resolving awaited links from the linkmap,
// resource cache, receipt store, or network in that order, invoking the
// WASM evaluator batch by batch, and committing+broadcasting receipts
// (spec.md §4.3). Grounded on the teacher's graph.Engine concurrent
// execution path (runConcurrent): a bounded worker pool draining one
// batch at a time, collecting results on a channel, cancelling the batch
// on first failure.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/eventhandler"
	"github.com/weavemesh/weave/ipld"
	"github.com/weavemesh/weave/linkmap"
	"github.com/weavemesh/weave/telemetry"
	"github.com/weavemesh/weave/workflow"
)

// resolver resolves awaited links to their substituted values, consulting
// the linkmap, then the resource cache, then the receipt store, then the
// network, in that order (spec.md §4.3.1 "Resolution order").
type resolver struct {
	links     *linkmap.LinkMap
	resources *linkmap.ResourceCache
	store     receiptGetter
	network   *eventhandler.Handler
	emitter   telemetry.Emitter
	timeout   time.Duration
}

type receiptGetter interface {
	GetReceipt(ctx context.Context, instructionCID string) (workflow.Receipt, bool, error)
}

// resolveCID resolves one awaited instruction-CID to its InstructionResult,
// trying, in order: the in-memory linkmap, the resource cache, the receipt
// store, then a network FindRecord with a bounded deadline (spec.md §4.3.1
// steps 1-4). A resource-cache or store hit is mirrored into the linkmap so
// later awaits in the same run skip that tier. A network hit is additionally
// committed to the store (KindStoredRecord) before being returned.
func (r *resolver) resolveCID(ctx context.Context, instructionCID cid.Cid) (workflow.InstructionResult, error) {
	if res, ok := r.links.Get(instructionCID); ok {
		return res, nil
	}

	if r.resources != nil {
		// An awaited CID may name a raw content blob (Resource::Cid(c))
		// rather than another instruction's output (spec.md §4.3.1 step 2):
		// if it's already in the worker's resource cache, it resolves to its
		// raw bytes without a store lookup or network round-trip.
		if data, ok := r.resources.Get(workflow.ResourceFromCID(instructionCID)); ok {
			res := workflow.Ok(ipld.Bytes(data))
			r.links.Put(instructionCID, res)
			return res, nil
		}
	}

	if r.store != nil {
		receipt, found, err := r.store.GetReceipt(ctx, instructionCID.String())
		if err != nil {
			return workflow.InstructionResult{}, fmt.Errorf("worker: store lookup for %s: %w", instructionCID, err)
		}
		if found {
			r.links.Put(instructionCID, receipt.Out)
			return receipt.Out, nil
		}
	}

	if r.network == nil {
		r.emitUnresolved(instructionCID, "no network configured")
		return workflow.InstructionResult{}, &UnresolvedCID{CID: instructionCID}
	}

	deadline := r.timeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	findCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	reply := make(chan eventhandler.FindResult, 1)
	if err := r.network.Submit(findCtx, eventhandler.FindRecord{
		Key:     instructionCID,
		Capsule: workflow.CapsuleReceipt,
		Reply:   reply,
	}); err != nil {
		r.emitUnresolved(instructionCID, err.Error())
		return workflow.InstructionResult{}, &UnresolvedCID{CID: instructionCID, Cause: err}
	}

	select {
	case res := <-reply:
		if res.Err != nil || res.Record.Receipt == nil {
			r.emitUnresolved(instructionCID, fmt.Sprintf("%v", res.Err))
			return workflow.InstructionResult{}, &UnresolvedCID{CID: instructionCID, Cause: res.Err}
		}
		out := res.Record.Receipt.Out
		r.links.Put(instructionCID, out)
		if r.store != nil {
			if putter, ok := r.store.(receiptPutter); ok {
				if err := putter.PutReceipt(ctx, instructionCID.String(), instructionCID.String(), *res.Record.Receipt); err == nil {
					r.emitter.Emit(telemetry.Event{
						Kind: telemetry.KindStoredRecord,
						Msg:  "remote receipt committed to local store",
						Meta: map[string]interface{}{"instruction_cid": instructionCID.String()},
					})
				}
			}
		}
		return out, nil
	case <-findCtx.Done():
		r.emitUnresolved(instructionCID, "network resolution timed out")
		return workflow.InstructionResult{}, &UnresolvedCID{CID: instructionCID, Cause: findCtx.Err()}
	}
}

type receiptPutter interface {
	PutReceipt(ctx context.Context, instructionCID string, workflowCID string, r workflow.Receipt) error
}

func (r *resolver) emitUnresolved(instructionCID cid.Cid, reason string) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(telemetry.Event{
		Kind: telemetry.KindUnresolvedCid,
		Msg:  reason,
		Meta: map[string]interface{}{"instruction_cid": instructionCID.String()},
	})
}

// substitute walks v and replaces every awaited link with the resolved
// result appropriate to that link's sensitivity (spec.md §3: "Input may
// contain awaited links ... substituted with the resolved result before
// the instruction's module function is invoked").
func substitute(v ipld.Value, resolved map[cid.Cid]workflow.InstructionResult) (ipld.Value, error) {
	if link, ok := workflow.ParseAwaitedLink(v); ok {
		res, ok := resolved[link.CID]
		if !ok {
			return ipld.Null(), fmt.Errorf("worker: no resolved value for awaited cid %s", link.CID)
		}
		out, err := link.Resolve(res)
		if err != nil {
			return ipld.Null(), err
		}
		return out.ToValue(), nil
	}

	switch v.Kind() {
	case ipld.KindList:
		items, _ := v.AsList()
		out := make([]ipld.Value, len(items))
		for i, item := range items {
			sub, err := substitute(item, resolved)
			if err != nil {
				return ipld.Null(), err
			}
			out[i] = sub
		}
		return ipld.List(out...), nil
	case ipld.KindMap:
		entries, _ := v.AsMap()
		out := make([]ipld.MapEntry, len(entries))
		for i, entry := range entries {
			sub, err := substitute(entry.Value, resolved)
			if err != nil {
				return ipld.Null(), err
			}
			out[i] = ipld.MapEntry{Key: entry.Key, Value: sub}
		}
		return ipld.Map(out...), nil
	default:
		return v, nil
	}
}

// UnresolvedCID reports that an awaited instruction-CID could not be
// resolved through any tier (spec.md §7 "Unresolved CID").
type UnresolvedCID struct {
	CID   cid.Cid
	Cause error
}

func (e *UnresolvedCID) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("worker: unresolved cid %s: %v", e.CID, e.Cause)
	}
	return fmt.Sprintf("worker: unresolved cid %s", e.CID)
}

func (e *UnresolvedCID) Unwrap() error { return e.Cause }
