package log

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/virtforensics/memory-inspector/pkg/requestid"
)

// StructuredLogger emits one structured line per traced operation.
// Service-layer code builds a tracer at the top of an operation and logs the
// outcome exactly once.
type StructuredLogger struct {
	logger *zap.SugaredLogger
	level  zapcore.Level
}

// NewDebugLogger returns a logger whose successful operations are logged at
// debug level. Failures are always logged at error level.
func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{logger: zap.S().Named(name), level: zapcore.DebugLevel}
}

// NewInfoLogger is like NewDebugLogger but logs successes at info level.
func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{logger: zap.S().Named(name), level: zapcore.InfoLevel}
}

type Builder struct {
	parent    *StructuredLogger
	operation string
	fields    []any
}

func (l *StructuredLogger) WithContext(ctx context.Context) *Builder {
	b := &Builder{parent: l}
	if rid := requestid.FromContext(ctx); rid != "" {
		b.fields = append(b.fields, "request_id", rid)
	}
	return b
}

func (b *Builder) Operation(op string) *Builder {
	b.operation = op
	return b
}

func (b *Builder) WithParam(key string, value any) *Builder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *Builder) Build() *Tracer {
	return &Tracer{
		parent:    b.parent,
		operation: b.operation,
		fields:    b.fields,
		start:     time.Now(),
	}
}

// Tracer records the outcome of one operation.
type Tracer struct {
	parent    *StructuredLogger
	operation string
	fields    []any
	start     time.Time
	err       error
	failed    bool
}

func (t *Tracer) Success() *Tracer {
	t.failed = false
	t.err = nil
	return t
}

func (t *Tracer) Error(err error) *Tracer {
	t.failed = true
	t.err = err
	return t
}

func (t *Tracer) WithParam(key string, value any) *Tracer {
	t.fields = append(t.fields, key, value)
	return t
}

func (t *Tracer) Log() {
	fields := append([]any{}, t.fields...)
	fields = append(fields, "operation", t.operation, "duration", time.Since(t.start))

	if t.failed {
		fields = append(fields, "error", t.err)
		t.parent.logger.Errorw("operation failed", fields...)
		return
	}

	switch t.parent.level {
	case zapcore.InfoLevel:
		t.parent.logger.Infow("operation completed", fields...)
	default:
		t.parent.logger.Debugw("operation completed", fields...)
	}
}
