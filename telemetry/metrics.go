package telemetry

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics exposes this runtime's counters and gauges under the
// "weave_" namespace, grounded on the teacher's graph.PrometheusMetrics
// (graph/metrics.go) and relabeled to this domain's observability surface:
// receipts captured/replayed, queue depth, active workers, and DHT quorum
// failures, instead of generic per-node step latency.
type PrometheusMetrics struct {
	capturedReceipts *prometheus.CounterVec
	replayedReceipts prometheus.Counter
	quorumFailures   *prometheus.CounterVec
	unresolvedCids   prometheus.Counter
	activeWorkers    prometheus.Gauge
	queueDepth       prometheus.Gauge

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers this runtime's metrics with registry (use
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		capturedReceipts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "captured_receipts_total",
			Help:      "Receipts committed by a worker, labeled by whether they were freshly executed or replayed",
		}, []string{"replayed"}),
		replayedReceipts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "replay_batches_total",
			Help:      "Worker runs that began with at least one already-satisfied instruction",
		}),
		quorumFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "receipt_quorum_failures_total",
			Help:      "DHT PutValue calls that failed to reach their configured quorum",
		}, []string{"capsule"}),
		unresolvedCids: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "unresolved_cids_total",
			Help:      "Awaited instruction CIDs that could not be resolved through any tier",
		}),
		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "weave",
			Name:      "active_workers",
			Help:      "Number of workflow runs currently executing",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "weave",
			Name:      "event_queue_depth",
			Help:      "Pending events buffered in the event handler's inbox",
		}),
	}
}

// Observe folds event into the appropriate metric. Safe to call from
// multiple emitters via a Fanout.
func (pm *PrometheusMetrics) Observe(event Event) {
	pm.mu.RLock()
	enabled := pm.enabled
	pm.mu.RUnlock()
	if !enabled {
		return
	}

	switch event.Kind {
	case KindCapturedReceipt:
		replayed := "false"
		if r, ok := event.Meta["replayed"].(bool); ok && r {
			replayed = "true"
		}
		pm.capturedReceipts.WithLabelValues(replayed).Inc()
	case KindReplayReceipts:
		pm.replayedReceipts.Inc()
	case KindReceiptQuorumFailure:
		capsule, _ := event.Meta["capsule"].(string)
		pm.quorumFailures.WithLabelValues(capsule).Inc()
	case KindUnresolvedCid:
		pm.unresolvedCids.Inc()
	}
}

// SetActiveWorkers reports the current number of in-flight workflow runs.
func (pm *PrometheusMetrics) SetActiveWorkers(n int) {
	pm.activeWorkers.Set(float64(n))
}

// SetQueueDepth reports the event handler's current inbox backlog.
func (pm *PrometheusMetrics) SetQueueDepth(n int) {
	pm.queueDepth.Set(float64(n))
}

// Disable stops Observe from recording, used in tests that don't want
// metric state to leak between cases sharing a registry.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// MetricsEmitter adapts PrometheusMetrics to the Emitter interface so it can
// sit in a Fanout alongside a LogEmitter or Recorder.
type MetricsEmitter struct {
	Metrics *PrometheusMetrics
}

func (m MetricsEmitter) Emit(event Event) { m.Metrics.Observe(event) }

func (m MetricsEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		m.Metrics.Observe(e)
	}
	return nil
}

func (m MetricsEmitter) Flush(context.Context) error { return nil }
