package gin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ginpkg "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/applyflow/telemetry/common/correlation"
	"github.com/applyflow/telemetry/common/logger"
	"github.com/applyflow/telemetry/common/test"
	interceptors "github.com/applyflow/telemetry/http/interceptors/gin"
	"github.com/applyflow/telemetry/metrics"
	"github.com/applyflow/telemetry/ratelimit"
)

func init() {
	ginpkg.SetMode(ginpkg.TestMode)
}

// observedLoggerMiddleware binds an observed logger to the request context so
// the assertions below can inspect what the middleware logged.
func observedLoggerMiddleware(logs *logger.Logger) ginpkg.HandlerFunc {
	return func(c *ginpkg.Context) {
		ctx := logger.ContextWithLogger(c.Request.Context(), logs)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newObservedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewLogger(zap.New(core)), logs
}

func TestCorrelationMiddlewareEchoesInboundID(t *testing.T) {
	r := ginpkg.New()
	r.Use(interceptors.CorrelationMiddleware)

	var seen string
	r.GET("/api/jobs", func(c *ginpkg.Context) {
		seen = correlation.ID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/jobs", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
}

func TestCorrelationMiddlewareGeneratesID(t *testing.T) {
	r := ginpkg.New()
	r.Use(interceptors.CorrelationMiddleware)

	var first, second string
	r.GET("/", func(c *ginpkg.Context) {
		rc, ok := correlation.FromContext(c.Request.Context())
		require.True(t, ok)
		if first == "" {
			first = rc.CorrelationID
		} else {
			second = rc.CorrelationID
		}
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, rec.Header().Get("X-Correlation-ID"))
}

func TestRequestLoggingSeverityFollowsStatus(t *testing.T) {
	cases := []struct {
		status   int
		expected zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, c := range cases {
		log, logs := newObservedLogger()

		r := ginpkg.New()
		r.Use(observedLoggerMiddleware(log))
		r.Use(interceptors.DefaultInterceptors(interceptors.WithCorrelationEnabled(false))...)
		status := c.status
		r.GET("/x", func(gc *ginpkg.Context) { gc.Status(status) })

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))

		completed := logs.FilterMessage("Request completed").All()
		require.Len(t, completed, 1, "status %d", c.status)
		assert.Equal(t, c.expected, completed[0].Level, "status %d", c.status)
	}
}

func TestRequestLoggingExcludedPaths(t *testing.T) {
	log, logs := newObservedLogger()

	r := ginpkg.New()
	r.Use(observedLoggerMiddleware(log))
	r.Use(interceptors.DefaultInterceptors(interceptors.WithCorrelationEnabled(false))...)
	r.GET("/health", func(c *ginpkg.Context) { c.Status(http.StatusOK) })
	r.GET("/api/jobs", func(c *ginpkg.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/jobs", nil))

	assert.Empty(t, logs.FilterFieldKey("path").
		FilterMessage("Request started").
		Filter(func(e observer.LoggedEntry) bool {
			return e.ContextMap()["path"] == "/health"
		}).All())
	assert.Len(t, logs.FilterMessage("Request started").All(), 1)
	assert.Len(t, logs.FilterMessage("Request completed").All(), 1)
}

func TestMetricsMiddleware(t *testing.T) {
	collector := metrics.NewCollector(metrics.WithLogger(test.NewLogger(t)))

	r := ginpkg.New()
	r.Use(interceptors.MetricsMiddleware(collector))
	r.GET("/api/jobs", func(c *ginpkg.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusOK)
	})
	r.GET("/api/broken", func(c *ginpkg.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusBadGateway)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/jobs", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/broken", nil))

	stats, ok := collector.RequestMetrics("/api/jobs")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Greater(t, stats.MaxDurationMS, 0.0)

	broken, ok := collector.RequestMetrics("/api/broken")
	require.True(t, ok)
	assert.Equal(t, int64(1), broken.TotalErrors)

	errs := collector.ErrorsSummary(time.Minute)
	require.Equal(t, 1, errs.TotalErrors)
	assert.Equal(t, "/api/broken", errs.Recent[0].Path)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.New(2, 0.001, ratelimit.WithLogger(test.NewLogger(t)))

	r := ginpkg.New()
	r.Use(interceptors.RateLimitMiddleware(limiter, nil))
	r.GET("/", func(c *ginpkg.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body["message"])
	assert.GreaterOrEqual(t, body["retry_after"].(float64), 1.0)
}

func TestRateLimitMiddlewareCustomKey(t *testing.T) {
	limiter := ratelimit.New(1, 0.001, ratelimit.WithLogger(test.NewLogger(t)))

	byUser := func(c *ginpkg.Context) string { return c.GetHeader("X-User-ID") }

	r := ginpkg.New()
	r.Use(interceptors.RateLimitMiddleware(limiter, byUser))
	r.GET("/", func(c *ginpkg.Context) { c.Status(http.StatusOK) })

	send := func(user string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-User-ID", user)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusOK, send("bob"))
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	collector := metrics.NewCollector(metrics.WithLogger(test.NewLogger(t)))
	log, logs := newObservedLogger()

	r := ginpkg.New()
	r.Use(observedLoggerMiddleware(log))
	r.Use(interceptors.PanicRecoveryMiddleware(collector))
	r.GET("/boom", func(c *ginpkg.Context) { panic("kaput") })

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")

	recovered := logs.FilterMessage("Recovered from panic in http handler").All()
	require.Len(t, recovered, 1)
	assert.Equal(t, "kaput", recovered[0].ContextMap()["panic"])

	errs := collector.ErrorsSummary(time.Minute)
	require.Equal(t, 1, errs.TotalErrors)
	assert.Equal(t, 1, errs.ByType["panic"])
}

func TestErrorHandlingMiddleware(t *testing.T) {
	log, logs := newObservedLogger()

	r := ginpkg.New()
	r.Use(observedLoggerMiddleware(log))
	r.Use(interceptors.ErrorHandlingMiddleware)
	r.GET("/fail", func(c *ginpkg.Context) {
		_ = c.Error(assert.AnError)
	})
	r.GET("/handled", func(c *ginpkg.Context) {
		_ = c.Error(assert.AnError)
		c.JSON(http.StatusBadRequest, ginpkg.H{"message": "bad input"})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.Len(t, logs.FilterMessage("Error in http handler").All(), 1)

	// A handler that already wrote a response keeps its status.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/handled", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad input")
}

func TestTimeoutMiddleware(t *testing.T) {
	r := ginpkg.New()
	r.Use(interceptors.TimeoutMiddleware(10 * time.Millisecond))
	r.GET("/", func(c *ginpkg.Context) {
		deadline, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 50*time.Millisecond)
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
