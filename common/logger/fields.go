package logger

import (
	"fmt"
	"runtime/debug"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"go.uber.org/zap"
)

// WithPanic builds the fields attached to a record emitted while recovering
// from a panic: the recovered value plus the goroutine stack.
func WithPanic(recovered any) []Field {
	return []Field{
		zap.String("panic", fmt.Sprintf("%v", recovered)),
		zap.ByteString("stacktrace", debug.Stack()),
	}
}

// WithTrace converts an active span context into log fields so records can
// be joined with APM traces.
func WithTrace(spanCtx *tracer.SpanContext) []Field {
	if spanCtx == nil {
		return nil
	}
	return []Field{
		zap.String("trace_id", spanCtx.TraceID()),
		zap.Uint64("span_id", spanCtx.SpanID()),
	}
}
