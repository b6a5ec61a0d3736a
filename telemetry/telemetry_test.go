package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderByKind(t *testing.T) {
	r := NewRecorder()
	r.Emit(Event{Kind: KindCapturedReceipt, WorkflowCID: "wf1"})
	r.Emit(Event{Kind: KindReplayReceipts, WorkflowCID: "wf1"})
	r.Emit(Event{Kind: KindCapturedReceipt, WorkflowCID: "wf2"})

	captured := r.ByKind(KindCapturedReceipt)
	if len(captured) != 2 {
		t.Fatalf("expected 2 captured_receipt events, got %d", len(captured))
	}
	if captured[0].WorkflowCID != "wf1" || captured[1].WorkflowCID != "wf2" {
		t.Error("expected events to preserve emission order")
	}
}

func TestFanoutBroadcasts(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	f := Fanout{Emitters: []Emitter{a, b}}

	f.Emit(Event{Kind: KindStoredRecord})
	if len(a.Events) != 1 || len(b.Events) != 1 {
		t.Fatalf("expected both recorders to observe the event, got a=%d b=%d", len(a.Events), len(b.Events))
	}

	if err := f.EmitBatch(context.Background(), []Event{{Kind: KindUnresolvedCid}}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if len(a.Events) != 2 || len(b.Events) != 2 {
		t.Error("expected EmitBatch to fan out to both recorders")
	}
}

func TestPrometheusMetricsObserveCapturedReceipt(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)

	pm.Observe(Event{Kind: KindCapturedReceipt, Meta: map[string]interface{}{"replayed": false}})
	pm.Observe(Event{Kind: KindCapturedReceipt, Meta: map[string]interface{}{"replayed": true}})
	pm.Observe(Event{Kind: KindUnresolvedCid})

	if got := testutil.ToFloat64(pm.capturedReceipts.WithLabelValues("false")); got != 1 {
		t.Errorf("captured_receipts{replayed=false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pm.capturedReceipts.WithLabelValues("true")); got != 1 {
		t.Errorf("captured_receipts{replayed=true} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pm.unresolvedCids); got != 1 {
		t.Errorf("unresolved_cids_total = %v, want 1", got)
	}
}

func TestPrometheusMetricsDisableStopsObserving(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)
	pm.Disable()
	pm.Observe(Event{Kind: KindReplayReceipts})
	if got := testutil.ToFloat64(pm.replayedReceipts); got != 0 {
		t.Errorf("expected disabled metrics to stay at 0, got %v", got)
	}
	pm.Enable()
	pm.Observe(Event{Kind: KindReplayReceipts})
	if got := testutil.ToFloat64(pm.replayedReceipts); got != 1 {
		t.Errorf("expected re-enabled metrics to record, got %v", got)
	}
}

func TestNullEmitterDiscardsSilently(t *testing.T) {
	var n NullEmitter
	n.Emit(Event{Kind: KindCapturedReceipt})
	if err := n.EmitBatch(context.Background(), []Event{{Kind: KindCapturedReceipt}}); err != nil {
		t.Errorf("NullEmitter.EmitBatch should never error, got %v", err)
	}
	if err := n.Flush(context.Background()); err != nil {
		t.Errorf("NullEmitter.Flush should never error, got %v", err)
	}
}
