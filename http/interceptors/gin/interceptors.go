package gin

import (
	"slices"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/applyflow/telemetry/metrics"
	"github.com/applyflow/telemetry/ratelimit"
)

const componentName = "gin"

// Chain IDs of the default interceptors, usable with Chain.InsertBefore etc.
const (
	ChainIDCorrelation   = "correlation"
	ChainIDLogging       = "logging"
	ChainIDPanicRecovery = "panic_recovery"
	ChainIDErrorHandling = "error_handling"
	ChainIDMetrics       = "metrics"
	ChainIDRateLimit     = "rate_limit"
	ChainIDCompression   = "compression"
	ChainIDTimeout       = "timeout"
)

type interceptorCfg struct {
	Collector          *metrics.Collector
	Limiter            *ratelimit.Limiter
	RateLimitKey       KeyFunc
	CorrelationEnabled bool
	ExcludedPaths      []string
	CompressionLevel   int
	HTTPDebug          bool
	HTTPTrace          bool
	Timeout            time.Duration
}

type InterceptorOpt func(cfg *interceptorCfg)

// WithCollector feeds every completed request into the metrics collector.
func WithCollector(collector *metrics.Collector) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.Collector = collector
	}
}

// WithRateLimiter enables per-caller admission control. The key function
// defaults to the client IP.
func WithRateLimiter(limiter *ratelimit.Limiter) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.Limiter = limiter
	}
}

// WithRateLimitKey overrides how a request maps to a rate-limit bucket key.
func WithRateLimitKey(key KeyFunc) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.RateLimitKey = key
	}
}

// WithCorrelationEnabled enables/disables correlation. Default is enabled.
func WithCorrelationEnabled(enabled bool) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.CorrelationEnabled = enabled
	}
}

// WithExcludedPaths suppresses the inbound request log line for the given
// paths (health checks, scrape endpoints and similar chatter).
func WithExcludedPaths(paths ...string) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.ExcludedPaths = append(cfg.ExcludedPaths, paths...)
	}
}

// WithTimeout sets the http handler timeout. Default is 1 minute.
func WithTimeout(timeout time.Duration) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.Timeout = timeout
	}
}

// WithHTTPDebug enables printing log line with request info and duration for every request
func WithHTTPDebug() InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.HTTPDebug = true
	}
}

// WithHTTPTrace enables deeper http debugging by also printing the whole request and response body
func WithHTTPTrace() InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.HTTPDebug = true
		cfg.HTTPTrace = true
	}
}

// WithCompressionLevel specifies the gzip compression level, default is gzip.DefaultCompression.
// Disable by using gzip.NoCompression.
func WithCompressionLevel(level int) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.CompressionLevel = level
	}
}

// DefaultChain builds the default observability chain for Gin servers.
// Defaults can be changed by passing any of the WithXXX options, and the
// returned chain can be reordered or extended before materializing.
func DefaultChain(opts ...InterceptorOpt) *Chain {
	cfg := &interceptorCfg{
		CorrelationEnabled: true,
		Timeout:            time.Minute,
		ExcludedPaths:      []string{"/health", "/metrics"},
		CompressionLevel:   gzip.DefaultCompression,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	chain := NewChain()
	if cfg.CorrelationEnabled {
		chain.Push(ChainIDCorrelation, CorrelationMiddleware)
	}
	chain.Push(ChainIDLogging, RequestLogging(loggingCfg{
		debug:    cfg.HTTPDebug,
		trace:    cfg.HTTPTrace,
		excluded: slices.Clone(cfg.ExcludedPaths),
	}))
	if cfg.Collector != nil {
		chain.Push(ChainIDMetrics, MetricsMiddleware(cfg.Collector))
	}
	chain.Push(ChainIDPanicRecovery, PanicRecoveryMiddleware(cfg.Collector))
	chain.Push(ChainIDErrorHandling, ErrorHandlingMiddleware)
	if cfg.Limiter != nil {
		chain.Push(ChainIDRateLimit, RateLimitMiddleware(cfg.Limiter, cfg.RateLimitKey))
	}
	if cfg.CompressionLevel != gzip.NoCompression {
		chain.Push(ChainIDCompression, gzip.Gzip(cfg.CompressionLevel))
	}
	chain.Push(ChainIDTimeout, TimeoutMiddleware(cfg.Timeout))

	return chain
}

// DefaultInterceptors returns all our default interceptors for Gin servers,
// already materialized for gin.Engine.Use.
func DefaultInterceptors(opts ...InterceptorOpt) []gin.HandlerFunc {
	return DefaultChain(opts...).Handlers()
}
