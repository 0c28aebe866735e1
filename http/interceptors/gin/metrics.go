package gin

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/applyflow/telemetry/metrics"
)

// MetricsMiddleware feeds every completed request into the collector. Errors
// attached to the gin context are recorded as error events with their
// concrete type.
func MetricsMiddleware(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		collector.RecordRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))

		for _, ginErr := range c.Errors {
			collector.RecordError(
				c.Request.Method,
				c.Request.URL.Path,
				errorType(ginErr.Err),
				ginErr.Err.Error(),
			)
		}
	}
}

func errorType(err error) string {
	if err == nil {
		return "unknown"
	}
	return fmt.Sprintf("%T", err)
}
