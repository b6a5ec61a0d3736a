// Package eventhandler is the single-threaded owner of the P2P swarm: a
// libp2p host, a Kademlia DHT, and a pub/sub gossip topic, mediating every
// network interaction on behalf of workers through a bounded inbound event
// channel (spec.md §4.4).
package eventhandler

import (
	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/weavemesh/weave/workflow"
)

// Event is the inbound taxonomy the event handler's select loop consumes
// (spec.md §4.4). Implementations are unexported-method sum-type members;
// construct the concrete types below instead of implementing Event yourself.
type Event interface {
	isEvent()
}

// CapturedReceipt reports a freshly committed (or replayed) receipt to the
// event handler, which re-reads it from the store and drives gossip + DHT
// publication (spec.md §4.4 "Receipt publication").
type CapturedReceipt struct {
	InstructionCID cid.Cid
	ReceiptCID     cid.Cid
	WorkflowCID    cid.Cid
	Replayed       bool
}

func (CapturedReceipt) isEvent() {}

// ReplayReceipts batches every already-satisfied instruction-CID of a
// worker's run, emitted once before any new work starts (spec.md §4.3).
type ReplayReceipts struct {
	WorkflowCID     cid.Cid
	InstructionCIDs []cid.Cid
}

func (ReplayReceipts) isEvent() {}

// FindRecord requests resolution of key's record from the DHT, tagged by
// which capsule shape the caller expects. Reply is delivered on Reply,
// which the caller must not close. The event handler sends exactly one
// FindResult on Reply with a plain blocking send; it does not detect a
// receiver that has gone away.
type FindRecord struct {
	Key     cid.Cid
	Capsule workflow.CapsuleTag
	Reply   chan<- FindResult
}

func (FindRecord) isEvent() {}

// FindResult is the outcome of a FindRecord.
type FindResult struct {
	Record workflow.DecodedRecord
	Err    error
}

// RemoveRecord deletes the handler's peer-cache entry stored under key's
// string form. It does not remove anything from the DHT.
type RemoveRecord struct {
	Key cid.Cid
}

func (RemoveRecord) isEvent() {}

// OutboundRequest asks the event handler to fetch key's capsule from a
// specific peer via the request/response protocol, used after GetProviders
// resolves a provider set.
type OutboundRequest struct {
	Peer    peer.ID
	Key     cid.Cid
	Capsule workflow.CapsuleTag
	Reply   chan<- FindResult
}

func (OutboundRequest) isEvent() {}

// GetProviders asks the DHT for the provider set of key.
type GetProviders struct {
	Key     cid.Cid
	Capsule workflow.CapsuleTag
	Reply   chan<- FindResult
}

func (GetProviders) isEvent() {}

// ProvideRecord announces this node as a provider for key.
type ProvideRecord struct {
	Key cid.Cid
}

func (ProvideRecord) isEvent() {}

// RegisterPeer drives a rendezvous registration for peer p, normally fired
// by a TTL cache expiration rather than a direct caller.
type RegisterPeer struct {
	Peer peer.ID
}

func (RegisterPeer) isEvent() {}

// DiscoverPeers drives a rendezvous discovery round against peer p.
type DiscoverPeers struct {
	Peer peer.ID
}

func (DiscoverPeers) isEvent() {}

// NodeInfo is the snapshot GetNodeInfo returns.
type NodeInfo struct {
	PeerID         peer.ID
	ConnectedPeers int
	ListenAddrs    []string
}

// GetNodeInfo requests a snapshot of swarm state, used by the runner to
// answer the external `node` RPC (spec.md §6).
type GetNodeInfo struct {
	Reply chan<- NodeInfo
}

func (GetNodeInfo) isEvent() {}

// Shutdown asks the event handler to exit its loop, closing Done just
// before Run returns (spec.md §5 "Shutdown"). The handler does not close
// the host, DHT or pubsub itself.
type Shutdown struct {
	Done chan<- struct{}
}

func (Shutdown) isEvent() {}
