package main

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	libp2pps "github.com/libp2p/go-libp2p-pubsub"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weavemesh/weave/config"
	"github.com/weavemesh/weave/eventhandler"
	"github.com/weavemesh/weave/receiptstore"
	"github.com/weavemesh/weave/telemetry"
	"github.com/weavemesh/weave/wasmrun"
)

// node bundles the process singletons a run or node command needs, and the
// teardown for each of them in reverse construction order.
type node struct {
	Store     receiptstore.Store
	Evaluator wasmrun.Evaluator
	Emitter   telemetry.Emitter
	Network   *eventhandler.Handler

	runNetwork func(context.Context) error
	closers    []func() error
}

// newNode constructs every process singleton named in SPEC_FULL.md's
// DOMAIN STACK section: the receipt store, the wazero evaluator, a zap+
// Prometheus telemetry fanout, and (unless withNetwork is false) the libp2p
// host/DHT/pubsub swarm behind an eventhandler.Handler.
func newNode(ctx context.Context, cfg config.Config, withNetwork bool) (*node, error) {
	n := &node{}

	logger, err := newLogger(cfg.Runtime.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("weaved: logger: %w", err)
	}
	n.closers = append(n.closers, logger.Sync)

	metrics := telemetry.NewPrometheusMetrics(nil)
	n.Emitter = telemetry.Fanout{Emitters: []telemetry.Emitter{
		telemetry.NewLogEmitter(logger),
		telemetry.MetricsEmitter{Metrics: metrics},
	}}

	store, err := newStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("weaved: store: %w", err)
	}
	n.Store = store
	n.closers = append(n.closers, store.Close)

	evaluator, err := wasmrun.NewWazeroEvaluator(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaved: evaluator: %w", err)
	}
	n.Evaluator = evaluator
	n.closers = append(n.closers, func() error { return evaluator.Close(context.Background()) })

	if !withNetwork {
		return n, nil
	}

	if err := validateListenAddrs(cfg.Network.ListenAddrs); err != nil {
		return nil, fmt.Errorf("weaved: network.listen_addrs: %w", err)
	}
	host, err := libp2p.New(libp2p.ListenAddrStrings(cfg.Network.ListenAddrs...))
	if err != nil {
		return nil, fmt.Errorf("weaved: libp2p host: %w", err)
	}
	n.closers = append(n.closers, host.Close)

	kad, err := dht.New(ctx, host, dht.Mode(dht.ModeAuto))
	if err != nil {
		return nil, fmt.Errorf("weaved: kad-dht: %w", err)
	}
	n.closers = append(n.closers, kad.Close)

	ps, err := libp2pps.NewGossipSub(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("weaved: pubsub: %w", err)
	}

	handler := eventhandler.New(eventhandler.Config{
		Host:           host,
		DHT:            kad,
		PubSub:         ps,
		Store:          store,
		Emitter:        n.Emitter,
		ReceiptQuorum:  eventhandler.N(cfg.Network.ReceiptQuorum),
		WorkflowQuorum: eventhandler.N(cfg.Network.WorkflowQuorum),
		MaxPeers:       cfg.Network.MaxPeers,
		PeerTTL:        cfg.Network.PeerTTL,
		InboxSize:      cfg.Network.InboxSize,
	})
	n.Network = handler
	n.runNetwork = handler.Run

	return n, nil
}

// validateListenAddrs parses every configured listen address as a multiaddr
// up front, so a malformed entry in weaved.toml fails fast with a clear
// error instead of surfacing as an opaque libp2p.New failure.
func validateListenAddrs(addrs []string) error {
	for _, a := range addrs {
		if _, err := multiaddr.NewMultiaddr(a); err != nil {
			return fmt.Errorf("%q: %w", a, err)
		}
	}
	return nil
}

func newStore(cfg config.StoreConfig) (receiptstore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return receiptstore.NewMemoryStore(), nil
	case "sqlite":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for the sqlite driver")
		}
		return receiptstore.NewSQLiteStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var l zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := l.Set(level); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(l)
	return cfg.Build()
}

// shutdown tears down n's singletons in reverse construction order, giving
// the network handler up to 5s to exit its loop if it was started.
func (n *node) shutdown(ctx context.Context) {
	if n.Network != nil {
		done := make(chan struct{})
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := n.Network.Submit(shutdownCtx, eventhandler.Shutdown{Done: done}); err == nil {
			select {
			case <-done:
			case <-shutdownCtx.Done():
			}
		}
	}
	for i := len(n.closers) - 1; i >= 0; i-- {
		_ = n.closers[i]()
	}
}
