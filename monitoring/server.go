// Package monitoring exposes the read-only query surface over the
// observability core: log search, metrics dumps, error summaries, request
// tracing and health, authenticated by a shared API key unless development
// mode is set.
package monitoring

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"

	"github.com/applyflow/telemetry/common/config"
	"github.com/applyflow/telemetry/common/headers"
	"github.com/applyflow/telemetry/common/logger"
	"github.com/applyflow/telemetry/health"
	"github.com/applyflow/telemetry/metrics"
)

// Server serves the monitoring API.
type Server struct {
	cfg       *config.Config
	collector *metrics.Collector
	registry  *health.Registry
	log       *logger.Logger
	engine    *gin.Engine
}

// Option customizes the server at construction.
type Option func(s *Server)

// WithGinEngine supplies a pre-configured engine (testing, custom
// middleware); by default a bare gin.New is used.
func WithGinEngine(engine *gin.Engine) Option {
	return func(s *Server) {
		s.engine = engine
	}
}

// NewServer wires the monitoring routes onto a gin engine.
func NewServer(
	cfg *config.Config,
	collector *metrics.Collector,
	registry *health.Registry,
	log *logger.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:       cfg,
		collector: collector,
		registry:  registry,
		log:       log.Named("monitoring"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		gin.SetMode(gin.ReleaseMode)
		s.engine = gin.New()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	authed := s.engine.Group("/", s.authMiddleware())
	authed.GET("/logs", s.handleLogs)
	authed.GET("/health", s.handleHealth)
	authed.GET("/metrics", s.handleMetrics)
	authed.GET("/errors", s.handleErrors)
	authed.POST("/trace", s.handleTrace)
	authed.GET("/status", s.handleStatus)
	authed.GET("/metrics/prometheus", gin.WrapH(s.collector.PrometheusHandler()))
}

// Handler returns the server wrapped with CORS for browser-based dashboards.
func (s *Server) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", headers.HeaderXAPIKey}),
	)(s.engine)
}

// Run serves the monitoring API on the configured address, blocking.
func (s *Server) Run() error {
	addr := s.cfg.MonitoringAddr
	s.log.Info("monitoring API listening", logger.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// authMiddleware rejects callers without the shared key. Development mode
// bypasses authentication entirely; config validation already warned about
// that at startup.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.DevMode {
			c.Next()
			return
		}

		supplied := c.GetHeader(headers.HeaderXAPIKey)
		if supplied == "" {
			supplied = c.Query(headers.QueryParamAPIKey)
		}
		if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(s.cfg.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "missing or invalid API key",
			})
			return
		}
		c.Next()
	}
}
