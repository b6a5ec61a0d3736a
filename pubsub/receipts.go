// Package pubsub wraps the single gossip topic this runtime speaks on: a
// thin, typed layer over a raw libp2p-pubsub topic/subscription pair,
// matching the original implementation's own thin-wrapper structure
// (homestar-runtime/src/network/pubsub.rs) rather than exposing bare
// strings and []byte through the event handler.
package pubsub

import (
	"context"
	"fmt"

	libp2pps "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/weavemesh/weave/ipld"
	"github.com/weavemesh/weave/workflow"
)

// Name is the fixed topic this runtime joins for receipt gossip (spec.md §6).
const Name = "receipts"

// ReceiptTopic is a typed wrapper over the receipts gossip topic: Publish
// encodes a Receipt as its wire capsule, and a Subscription decodes inbound
// messages back into Receipts, so nothing downstream of pubsub.Join ever
// handles a raw capsule byte slice.
type ReceiptTopic struct {
	topic *libp2pps.Topic
}

// Join subscribes this node to the receipts topic on ps.
func Join(ps *libp2pps.PubSub) (*ReceiptTopic, error) {
	topic, err := ps.Join(Name)
	if err != nil {
		return nil, fmt.Errorf("pubsub: join %s: %w", Name, err)
	}
	return &ReceiptTopic{topic: topic}, nil
}

// Publish encodes r as a receipt capsule and gossips it to the mesh.
func (t *ReceiptTopic) Publish(ctx context.Context, r workflow.Receipt) error {
	data, err := workflow.EncodeReceiptCapsule(r)
	if err != nil {
		return fmt.Errorf("pubsub: encode receipt capsule: %w", err)
	}
	return t.topic.Publish(ctx, data)
}

// Subscribe opens a Subscription delivering every inbound message on this
// topic, including this node's own publications (dedup is the caller's
// responsibility, matching the original's content-addressed message-ID
// scheme rather than a local skip).
func (t *ReceiptTopic) Subscribe() (*Subscription, error) {
	sub, err := t.topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("pubsub: subscribe %s: %w", Name, err)
	}
	return &Subscription{sub: sub}, nil
}

// Close leaves the topic.
func (t *ReceiptTopic) Close() error {
	return t.topic.Close()
}

// Subscription is a typed handle on inbound receipt-topic traffic.
type Subscription struct {
	sub *libp2pps.Subscription
}

// ReceivedReceipt is one decoded inbound gossip message.
type ReceivedReceipt struct {
	From    peer.ID
	Receipt workflow.Receipt
}

// Next blocks until the next message arrives on this topic, decoding it as
// a receipt capsule. A capsule's own declared CID is self-verifying here
// (there is no a priori "want" key as there is for a DHT GetValue, since
// gossip delivers the payload directly): the contained receipt's computed
// CID is used as DecodeCapsule's expected key. Returns ctx.Err() once ctx
// is cancelled.
func (s *Subscription) Next(ctx context.Context) (ReceivedReceipt, error) {
	msg, err := s.sub.Next(ctx)
	if err != nil {
		return ReceivedReceipt{}, err
	}

	v, err := ipld.Decode(msg.Data)
	if err != nil {
		return ReceivedReceipt{}, fmt.Errorf("pubsub: decode message: %w", err)
	}
	entries, ok := v.AsMap()
	if !ok || len(entries) != 1 || entries[0].Key != string(workflow.CapsuleReceipt) {
		return ReceivedReceipt{}, fmt.Errorf("pubsub: message on %s was not a receipt capsule", Name)
	}
	r, err := workflow.ReceiptFromValue(entries[0].Value)
	if err != nil {
		return ReceivedReceipt{}, fmt.Errorf("pubsub: decode receipt: %w", err)
	}
	key, err := r.CID()
	if err != nil {
		return ReceivedReceipt{}, fmt.Errorf("pubsub: receipt cid: %w", err)
	}
	record, err := workflow.DecodeCapsule(key, msg.Data)
	if err != nil {
		return ReceivedReceipt{}, fmt.Errorf("pubsub: decode receipt capsule: %w", err)
	}
	return ReceivedReceipt{From: msg.ReceivedFrom, Receipt: *record.Receipt}, nil
}

// Cancel closes the subscription.
func (s *Subscription) Cancel() {
	s.sub.Cancel()
}
