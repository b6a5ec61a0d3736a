package eventhandler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	libp2pps "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/ipfs/go-cid"

	routingDHT "github.com/libp2p/go-libp2p-kad-dht"

	"github.com/weavemesh/weave/pubsub"
	"github.com/weavemesh/weave/receiptstore"
	"github.com/weavemesh/weave/telemetry"
	"github.com/weavemesh/weave/workflow"
)

// RendezvousNamespace is the fixed discovery namespace peers advertise and
// search under (spec.md §6).
const RendezvousNamespace = "homestar"

// ReceiptsTopic is the single pub/sub topic name (spec.md §6), re-exported
// from the pubsub package for callers that only need the name.
const ReceiptsTopic = pubsub.Name

// IdentifyProtocolVersion is the version string peers must match on
// identify (spec.md §6); non-matching peers are dropped.
const IdentifyProtocolVersion = "homestar/0.1.0"

// Config bundles the process-singleton network handles the event handler
// mediates on behalf of workers (spec.md §9 "Global process state").
type Config struct {
	Host           host.Host
	DHT            *routingDHT.IpfsDHT
	PubSub         *libp2pps.PubSub
	Store          receiptstore.Store
	Emitter        telemetry.Emitter
	ReceiptQuorum  Quorum
	WorkflowQuorum Quorum
	MaxPeers       int
	PeerTTL        time.Duration
	InboxSize      int
}

// Handler is the sole owner of the swarm and the per-query pending-sender
// table (spec.md §4.4). All swarm mutation happens on the goroutine running
// Run; other goroutines only ever send on Inbox or completions.
type Handler struct {
	cfg Config

	inbox       chan Event
	completions chan completion

	discovery *drouting.RoutingDiscovery
	topic     *pubsub.ReceiptTopic

	mu          sync.Mutex // guards pending and connections; never held across network I/O
	pending     map[string]pendingQuery
	connections map[peer.ID]string
	peerCache   *gocache.Cache
}

type pendingQuery struct {
	key     cid.Cid
	capsule workflow.CapsuleTag
	reply   chan<- FindResult
}

type completionKind int

const (
	completionGetRecord completionKind = iota
	completionPutRecord
	completionProviders
)

type completion struct {
	kind      completionKind
	queryID   string
	key       cid.Cid
	data      []byte
	providers []peer.AddrInfo
	err       error
	acks      int
	quorum    int
	stored    int
}

// New constructs a Handler. It does not start the select loop; call Run.
func New(cfg Config) *Handler {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.Emitter == nil {
		cfg.Emitter = telemetry.NullEmitter{}
	}

	h := &Handler{
		cfg:         cfg,
		inbox:       make(chan Event, cfg.InboxSize),
		completions: make(chan completion, cfg.InboxSize),
		pending:     make(map[string]pendingQuery),
		connections: make(map[peer.ID]string),
	}

	ttl := cfg.PeerTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	h.peerCache = gocache.New(ttl, ttl/2)
	h.peerCache.OnEvicted(h.onPeerExpired)

	if cfg.Host != nil {
		cfg.Host.Network().Notify(&network.NotifyBundle{
			ConnectedF: func(_ network.Network, c network.Conn) {
				h.mu.Lock()
				h.connections[c.RemotePeer()] = c.RemoteMultiaddr().String()
				h.mu.Unlock()
			},
			DisconnectedF: func(_ network.Network, c network.Conn) {
				h.mu.Lock()
				delete(h.connections, c.RemotePeer())
				h.mu.Unlock()
			},
		})
	}
	if cfg.DHT != nil {
		h.discovery = drouting.NewRoutingDiscovery(cfg.DHT)
	}
	if cfg.PubSub != nil {
		if topic, err := pubsub.Join(cfg.PubSub); err == nil {
			h.topic = topic
		}
	}

	return h
}

// Submit enqueues ev on the inbound channel, blocking (cooperative
// back-pressure, spec.md §5) until there is room or ctx is done.
func (h *Handler) Submit(ctx context.Context, ev Event) error {
	select {
	case h.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the select loop interleaving inbound Events and DHT/pubsub
// completions until a Shutdown event is processed or ctx is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	if h.cfg.Host != nil {
		h.registerRendezvousLoop(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-h.inbox:
			if done, ok := h.dispatch(ctx, ev); ok {
				if done != nil {
					close(done)
				}
				return nil
			}
		case c := <-h.completions:
			h.handleCompletion(ctx, c)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, ev Event) (chan<- struct{}, bool) {
	switch e := ev.(type) {
	case CapturedReceipt:
		h.handleCapturedReceipt(ctx, e)
	case ReplayReceipts:
		// Replayed receipts are already in the store; nothing to publish.
		// Observers are notified via telemetry by the worker directly.
	case FindRecord:
		h.handleFindRecord(ctx, e)
	case RemoveRecord:
		h.handleRemoveRecord(e)
	case OutboundRequest:
		h.handleOutboundRequest(ctx, e)
	case GetProviders:
		h.handleGetProviders(ctx, e)
	case ProvideRecord:
		h.handleProvideRecord(ctx, e)
	case RegisterPeer:
		h.handleRegisterPeer(ctx, e.Peer)
	case DiscoverPeers:
		h.handleDiscoverPeers(ctx, e.Peer)
	case GetNodeInfo:
		e.Reply <- h.nodeInfo()
	case Shutdown:
		return e.Done, true
	}
	return nil, false
}

func (h *Handler) nodeInfo() NodeInfo {
	info := NodeInfo{}
	if h.cfg.Host != nil {
		info.PeerID = h.cfg.Host.ID()
		for _, a := range h.cfg.Host.Addrs() {
			info.ListenAddrs = append(info.ListenAddrs, a.String())
		}
	}
	h.mu.Lock()
	info.ConnectedPeers = len(h.connections)
	h.mu.Unlock()
	return info
}

func (h *Handler) connectedPeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

func (h *Handler) registerQuery(key cid.Cid, capsule workflow.CapsuleTag, reply chan<- FindResult) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.pending[id] = pendingQuery{key: key, capsule: capsule, reply: reply}
	h.mu.Unlock()
	return id
}

// takeQuery removes and returns the pending entry for id, enforcing
// at-most-one-sender-per-query (spec.md §4.4 "At-most-one policy").
func (h *Handler) takeQuery(id string) (pendingQuery, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	return q, ok
}

func (h *Handler) onPeerExpired(key string, value interface{}) {
	kind, _ := value.(string)
	p, err := peer.Decode(key)
	if err != nil {
		return
	}
	ctx := context.Background()
	switch kind {
	case "discover":
		_ = h.Submit(ctx, DiscoverPeers{Peer: p})
	case "register":
		_ = h.Submit(ctx, RegisterPeer{Peer: p})
	}
}

func (h *Handler) registerRendezvousLoop(ctx context.Context) {
	if h.discovery == nil {
		return
	}
	go func() {
		_, _ = h.discovery.Advertise(ctx, RendezvousNamespace)
	}()
}
