// Package correlation carries the identity of one logical request through
// the call stack. The RequestContext is stored in a context.Context under a
// private key, so any code on the request path observes it implicitly and
// nothing outside that path can reach it.
package correlation

import (
	"context"
	"maps"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/google/uuid"

	"github.com/applyflow/telemetry/common/logger"
)

// IDKey is the log field name under which the correlation ID is emitted.
const IDKey = "correlation_id"

// RequestContext describes one in-flight request. It is immutable after
// creation: exactly one lives per logical request, scoped to the request's
// context chain, never shared across concurrent requests and never persisted.
type RequestContext struct {
	CorrelationID string
	Method        string
	Path          string
	UserID        string
	IPAddress     string
	StartTime     time.Time
	Metadata      map[string]string
}

// Option customizes a RequestContext at creation.
type Option func(rc *RequestContext)

func WithCorrelationID(id string) Option {
	return func(rc *RequestContext) {
		if id != "" {
			rc.CorrelationID = id
		}
	}
}

func WithUserID(userID string) Option {
	return func(rc *RequestContext) {
		rc.UserID = userID
	}
}

func WithIPAddress(ip string) Option {
	return func(rc *RequestContext) {
		rc.IPAddress = ip
	}
}

func WithMetadata(md map[string]string) Option {
	return func(rc *RequestContext) {
		rc.Metadata = maps.Clone(md)
	}
}

// New creates a RequestContext, generating a correlation ID when none is
// supplied via WithCorrelationID.
func New(method, path string, opts ...Option) RequestContext {
	rc := RequestContext{
		Method:    method,
		Path:      path,
		StartTime: time.Now(),
	}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.CorrelationID == "" {
		rc.CorrelationID = uuid.NewString()
	}
	return rc
}

// Duration reports how long the request has been running.
func (rc RequestContext) Duration() time.Duration {
	return time.Since(rc.StartTime)
}

// ToLogFields converts the request identity to structured log fields.
func (rc RequestContext) ToLogFields() []logger.Field {
	fields := []logger.Field{
		logger.String(IDKey, rc.CorrelationID),
		logger.String("method", rc.Method),
		logger.String("path", rc.Path),
	}
	if rc.UserID != "" {
		fields = append(fields, logger.String("user_id", rc.UserID))
	}
	if rc.IPAddress != "" {
		fields = append(fields, logger.String("ip_address", rc.IPAddress))
	}
	return fields
}

// Metadatum returns a single metadata value, empty if absent.
func (rc RequestContext) Metadatum(key string) string {
	return rc.Metadata[key]
}

// requestContextKey is a private type for context keys to avoid collisions
type requestContextKey struct{}

// WithContext attaches a RequestContext to the context chain, mirrors the
// correlation ID into the active trace span's baggage when one exists, and
// binds the identity fields to the context logger so every downstream log
// call carries them.
func WithContext(ctx context.Context, rc RequestContext) context.Context {
	if span, ok := tracer.SpanFromContext(ctx); ok {
		span.SetBaggageItem(IDKey, rc.CorrelationID)
	}
	ctx = context.WithValue(ctx, requestContextKey{}, &rc)
	return logger.ContextWithFields(ctx, rc.ToLogFields()...)
}

// FromContext returns the ambient RequestContext, if any.
func FromContext(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok && rc != nil {
		return *rc, true
	}
	return RequestContext{}, false
}

// ClearFromContext detaches the RequestContext, shadowing any value set
// further up the chain. Middleware teardown relies on this so identity never
// leaks into whatever the goroutine handles next.
func ClearFromContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestContextKey{}, (*RequestContext)(nil))
}

// ID returns the ambient correlation ID, empty if no request is attached.
func ID(ctx context.Context) string {
	rc, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return rc.CorrelationID
}
