package eventhandler

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"

	"github.com/weavemesh/weave/telemetry"
	"github.com/weavemesh/weave/workflow"
)

// handleCapturedReceipt implements spec.md §4.4 "Receipt publication".
func (h *Handler) handleCapturedReceipt(ctx context.Context, e CapturedReceipt) {
	r, found, err := h.cfg.Store.GetReceipt(ctx, e.InstructionCID.String())
	if err != nil || !found {
		h.cfg.Emitter.Emit(telemetry.Event{
			Kind: telemetry.KindGossipPublishFailure,
			Msg:  "receipt vanished from store before publication",
			Meta: map[string]interface{}{"instruction_cid": e.InstructionCID.String()},
		})
		return
	}

	if h.connectedPeerCount() == 0 {
		return // local store is authoritative with no peers to tell
	}

	if h.topic != nil {
		if err := h.topic.Publish(ctx, r); err != nil {
			h.cfg.Emitter.Emit(telemetry.Event{Kind: telemetry.KindGossipPublishFailure, Msg: err.Error()})
		}
	}

	h.putCapsule(ctx, e.InstructionCID, capsuleForPut{receipt: &r}, workflow.CapsuleReceipt, h.cfg.ReceiptQuorum)

	info, found, err := h.cfg.Store.GetWorkflowInfo(ctx, e.WorkflowCID.String())
	if err == nil && found {
		h.putCapsule(ctx, e.WorkflowCID, capsuleForPut{info: info}, workflow.CapsuleWorkflow, h.cfg.WorkflowQuorum)
	}
}

type capsuleForPut struct {
	receipt *workflow.Receipt
	info    *workflow.Info
}

// putCapsule encodes either a receipt or workflow-info capsule and submits
// a PutValue to the DHT on its own goroutine, reporting completion back
// onto h.completions so the single select loop stays the only mutator of
// pending-query state (spec.md §9's goroutine-per-blocking-call pattern).
// quorum is carried through to the completion so a failure reports the
// quorum that actually applied to this PUT (receipt vs workflow-info), not
// always the receipt quorum.
func (h *Handler) putCapsule(ctx context.Context, key cid.Cid, c capsuleForPut, tag workflow.CapsuleTag, quorum Quorum) {
	if h.cfg.DHT == nil {
		return
	}
	var data []byte
	var err error
	if c.receipt != nil {
		data, err = workflow.EncodeReceiptCapsule(*c.receipt)
	} else {
		data, err = workflow.EncodeWorkflowCapsule(c.info)
	}
	if err != nil {
		h.cfg.Emitter.Emit(telemetry.Event{Kind: telemetry.KindGossipPublishFailure, Msg: err.Error()})
		return
	}

	id := h.registerQuery(key, tag, nil)
	connected := h.connectedPeerCount()
	required := quorum.Required()

	go func() {
		putErr := h.cfg.DHT.PutValue(ctx, string(key.Bytes()), data, routing.Quorum(required))
		// PutValue's public API reports only success-at-quorum or failure; it
		// does not surface how many individual peer stores succeeded before a
		// failing call gave up, so a failure is reported as zero stored peers
		// rather than a fabricated partial count.
		stored := 0
		if putErr == nil {
			stored = required
		}
		h.completions <- completion{kind: completionPutRecord, queryID: id, key: key, err: putErr, acks: connected, quorum: required, stored: stored}
	}()
}

// handleFindRecord implements the caller side of spec.md §4.3.1 step 4 and
// §4.4's DHT query completion handling.
func (h *Handler) handleFindRecord(ctx context.Context, e FindRecord) {
	if h.cfg.DHT == nil {
		e.Reply <- FindResult{Err: errNoDHT}
		return
	}
	id := h.registerQuery(e.Key, e.Capsule, e.Reply)
	go func() {
		data, err := h.cfg.DHT.GetValue(ctx, string(e.Key.Bytes()))
		if err != nil {
			h.completions <- completion{kind: completionGetRecord, queryID: id, key: e.Key, err: err}
			return
		}
		h.completions <- completion{kind: completionGetRecord, queryID: id, key: e.Key, data: data}
	}()
}

// handleOutboundRequest asks a specific peer for key's capsule via the
// request/response protocol. The actual wire protocol handler is out of
// scope here (spec.md treats it as a thin decode/route step); this issues
// the DHT-backed equivalent so resolution still completes.
func (h *Handler) handleOutboundRequest(ctx context.Context, e OutboundRequest) {
	h.handleFindRecord(ctx, FindRecord{Key: e.Key, Capsule: e.Capsule, Reply: e.Reply})
}

func (h *Handler) handleGetProviders(ctx context.Context, e GetProviders) {
	if h.cfg.DHT == nil {
		e.Reply <- FindResult{Err: errNoDHT}
		return
	}
	id := h.registerQuery(e.Key, e.Capsule, e.Reply)
	go func() {
		ch := h.cfg.DHT.FindProvidersAsync(ctx, e.Key, 20)
		var self peer.ID
		if h.cfg.Host != nil {
			self = h.cfg.Host.ID()
		}
		var providers []peer.AddrInfo
		for p := range ch {
			if p.ID == self {
				continue
			}
			providers = append(providers, p)
		}
		h.completions <- completion{kind: completionProviders, queryID: id, key: e.Key, providers: providers}
	}()
}

func (h *Handler) handleProvideRecord(ctx context.Context, e ProvideRecord) {
	if h.cfg.DHT == nil {
		return
	}
	go func() {
		_ = h.cfg.DHT.Provide(ctx, e.Key, true)
	}()
}

func (h *Handler) handleRemoveRecord(e RemoveRecord) {
	h.peerCache.Delete(e.Key.String())
}

func (h *Handler) handleRegisterPeer(ctx context.Context, p peer.ID) {
	if h.discovery != nil {
		go func() {
			if _, err := h.discovery.Advertise(ctx, RendezvousNamespace); err != nil {
				h.cfg.Emitter.Emit(telemetry.Event{
					Kind: telemetry.KindPeerRegistrationFailure,
					Msg:  err.Error(),
					Meta: map[string]interface{}{"peer": p.String()},
				})
			}
		}()
	}
	h.peerCache.Set(p.String(), "register", 0)
}

func (h *Handler) handleDiscoverPeers(ctx context.Context, p peer.ID) {
	if h.discovery == nil {
		return
	}
	go func() {
		peers, err := h.discovery.FindPeers(ctx, RendezvousNamespace)
		if err != nil {
			return
		}
		for range peers {
			// Connections established here land in h.connections via the
			// host's own connection notifier (wired in New), not here.
		}
	}()
	h.peerCache.Set(p.String(), "discover", 0)
}

// handleCompletion is the swarm-event side of spec.md §4.4: dispatch a
// finished DHT operation to its registered sender and retire the query.
func (h *Handler) handleCompletion(ctx context.Context, c completion) {
	switch c.kind {
	case completionGetRecord:
		q, ok := h.takeQuery(c.queryID)
		if !ok {
			return
		}
		if c.err != nil {
			if q.capsule == workflow.CapsuleWorkflow {
				// Provider-based fallback is implemented only for Workflow
				// capsules (spec.md §9 Open Question, decided in
				// SPEC_FULL.md): retry via GetProviders on the same key.
				h.handleGetProviders(ctx, GetProviders{Key: c.key, Capsule: q.capsule, Reply: q.reply})
				return
			}
			if q.reply != nil {
				q.reply <- FindResult{Err: c.err}
			}
			return
		}
		var record workflow.DecodedRecord
		var err error
		if q.capsule == workflow.CapsuleReceipt {
			// A receipt is stored keyed by the instruction it ran, not by
			// its own CID (spec.md §4.4): verify it by its own CID and the
			// record's instruction linkage separately, not against c.key.
			record, err = workflow.DecodeReceiptCapsuleFromDHT(c.key, c.data)
		} else {
			record, err = workflow.DecodeCapsule(c.key, c.data)
		}
		if q.reply != nil {
			q.reply <- FindResult{Record: record, Err: err}
		}

	case completionPutRecord:
		q, ok := h.takeQuery(c.queryID)
		if !ok {
			return
		}
		if c.err != nil {
			h.cfg.Emitter.Emit(telemetry.Event{
				Kind: telemetry.KindReceiptQuorumFailure,
				Msg:  c.err.Error(),
				Meta: map[string]interface{}{
					"capsule":         string(q.capsule),
					"quorum":          c.quorum,
					"connected_peers": c.acks,
					"stored_to_peers": c.stored,
				},
			})
		}

	case completionProviders:
		q, ok := h.takeQuery(c.queryID)
		if !ok {
			return
		}
		if len(c.providers) == 0 {
			if q.reply != nil {
				q.reply <- FindResult{Err: errNoProviders}
			}
			return
		}
		for _, p := range c.providers {
			_ = h.Submit(ctx, OutboundRequest{Peer: p.ID, Key: c.key, Capsule: q.capsule, Reply: q.reply})
			break // one outstanding request is enough; at-most-one-pending-per-key
		}
	}
}
