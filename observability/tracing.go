package observability

import (
	"context"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"

	"github.com/applyflow/telemetry/common/logger"
)

type tracingCfg struct {
	serviceName string
	env         string
}

// WithTracing starts the APM tracer alongside the stack. Correlation data is
// mirrored into span baggage automatically once the tracer runs.
func WithTracing(serviceName, env string) Option {
	return func(c *initCfg) {
		c.tracing = &tracingCfg{serviceName: serviceName, env: env}
	}
}

func startTracer(cfg *tracingCfg, log *logger.Logger) {
	log.Info("Starting tracer")
	err := tracer.Start(
		tracer.WithEnv(cfg.env),
		tracer.WithService(cfg.serviceName),
		tracer.WithLogger((*tracerLogger)(log)),
	)
	if err != nil {
		log.Error("Failed to start tracer", logger.Error(err))
	}
}

func stopTracer() {
	tracer.Stop()
}

// StartSpan is a helper that should be used instead of
// tracer.StartSpanFromContext to ensure the context logger gets updated
// with trace and span ID.
func StartSpan(ctx context.Context, opName string, opts ...tracer.StartSpanOption) (*tracer.Span, context.Context) {
	span, ctx := tracer.StartSpanFromContext(ctx, opName, opts...)
	ctx = logger.ContextWithFields(ctx, logger.WithTrace(span.Context())...)
	return span, ctx
}

type tracerLogger logger.Logger

func (log *tracerLogger) Log(msg string) {
	if log == nil {
		return
	}
	(*logger.Logger)(log).Info(msg)
}
