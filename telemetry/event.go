// Package telemetry carries the core's observability events: receipt
// capture, replay, network notifications, and quorum outcomes (spec.md §4.4,
// §6 "JSON-RPC/WebSocket", §8 scenario 6). Grounded on the teacher's
// graph/emit package: the same Emitter/Event/LogEmitter shape, with an Event
// taxonomy fixed to this domain's notifications instead of generic
// workflow-step events.
package telemetry

import "context"

// Kind enumerates the notification types this core emits.
type Kind string

const (
	// KindCapturedReceipt is emitted once per freshly executed and committed
	// receipt. Receipts replayed from a warm store are reported only through
	// KindReplayReceipts.
	KindCapturedReceipt Kind = "captured_receipt"

	// KindReplayReceipts is emitted once per worker run, batching every
	// already-satisfied instruction-CID before any new work starts
	// (spec.md §4.3).
	KindReplayReceipts Kind = "replay_receipts"

	// KindStoredRecord is emitted when resolve_cid commits a remotely
	// fetched receipt to the local store as a side effect (spec.md §4.3.1).
	KindStoredRecord Kind = "stored_record"

	// KindReceiptQuorumFailure is emitted when a DHT put fails to reach
	// its configured quorum (spec.md §4.4, §8 scenario 6).
	KindReceiptQuorumFailure Kind = "receipt_quorum_failure"

	// KindUnresolvedCid is emitted when resolve_cid fails terminally
	// (network timeout or negative result) for an awaited CID.
	KindUnresolvedCid Kind = "unresolved_cid"

	// KindPeerRegistrationFailure is emitted when a rendezvous register
	// attempt fails (spec.md §7 "Transient" errors).
	KindPeerRegistrationFailure Kind = "peer_registration_failure"

	// KindGossipPublishFailure is emitted when a pub/sub publish fails;
	// gossip is best-effort and this is never fatal (spec.md §4.4).
	KindGossipPublishFailure Kind = "gossip_publish_failure"
)

// Event is one observability notification. Meta carries kind-specific
// structured data (e.g. KindReceiptQuorumFailure's quorum/connected_peers/
// stored_to_peers triple from spec.md §8 scenario 6).
type Event struct {
	Kind        Kind
	WorkflowCID string
	Msg         string
	Meta        map[string]interface{}
}

// Emitter receives observability events. Grounded on the teacher's
// emit.Emitter: implementations must be non-blocking and never let a
// failure to observe an event affect the workflow run it describes
// (spec.md §7: transient errors are "logged and surfaced via notifications;
// never fatal").
type Emitter interface {
	Emit(event Event)
	EmitBatch(ctx context.Context, events []Event) error
	Flush(ctx context.Context) error
}
