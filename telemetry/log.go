package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// LogEmitter implements Emitter atop a structured zap.Logger, the ambient
// logging library this repo uses throughout (replacing the teacher's
// LogEmitter, which wrote text/JSON lines directly to an io.Writer).
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter wraps logger. A nil logger falls back to zap's production
// default so callers never need a nil check.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &LogEmitter{logger: logger}
}

// Emit logs event at info level, fields keyed by kind/workflow/meta.
func (l *LogEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, len(event.Meta)+2)
	fields = append(fields, zap.String("kind", string(event.Kind)))
	if event.WorkflowCID != "" {
		fields = append(fields, zap.String("workflow_cid", event.WorkflowCID))
	}
	for k, v := range event.Meta {
		fields = append(fields, zap.Any(k, v))
	}
	l.logger.Info(event.Msg, fields...)
}

// EmitBatch logs each event in order.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

// Flush drains the underlying zap core's buffer.
func (l *LogEmitter) Flush(_ context.Context) error {
	return l.logger.Sync()
}

// NullEmitter discards every event; used where observability is disabled
// (spec.md §1 non-goals list no observability requirement for the core
// itself, only for its external collaborators).
type NullEmitter struct{}

func (NullEmitter) Emit(Event)                               {}
func (NullEmitter) EmitBatch(context.Context, []Event) error { return nil }
func (NullEmitter) Flush(context.Context) error              { return nil }
