package telemetry

import (
	"context"
	"sync"
)

// Recorder is an in-memory Emitter used by tests to assert which
// notifications a run produced, grounded on the determinism-contract style
// of the teacher's own test suite (assert on recorded facts, not timing).
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
}

func (r *Recorder) EmitBatch(_ context.Context, events []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, events...)
	return nil
}

func (r *Recorder) Flush(context.Context) error { return nil }

// ByKind returns the recorded events matching kind, in emission order.
func (r *Recorder) ByKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Fanout broadcasts every call to all of its emitters, in order. Used when a
// run should both log and feed a test Recorder.
type Fanout struct {
	Emitters []Emitter
}

func (f Fanout) Emit(event Event) {
	for _, e := range f.Emitters {
		e.Emit(event)
	}
}

func (f Fanout) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range f.Emitters {
		if err := e.EmitBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

func (f Fanout) Flush(ctx context.Context) error {
	for _, e := range f.Emitters {
		if err := e.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}
