package gin

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/applyflow/telemetry/common/env"
	"github.com/applyflow/telemetry/common/logger"
	"github.com/applyflow/telemetry/metrics"
)

// ErrorHandlingMiddleware handles errors and logs them appropriately with
// our logging framework. Handlers report failures via c.Error; anything left
// unanswered becomes a generic 500 so internals never leak to callers.
func ErrorHandlingMiddleware(c *gin.Context) {
	c.Next()
	if len(c.Errors) == 0 {
		return
	}
	err := c.Errors.Last().Err
	logger.FromContext(c.Request.Context()).Error("Error in http handler",
		logger.String("path", c.FullPath()),
		logger.Error(err),
	)
	if env.IsLocalApplicationEnv() {
		// pretty print the error to the local console to make it human-readable in case it has a stack trace
		_, _ = fmt.Fprintf(os.Stderr, "Error in http handler: %+v\n", err)
	}
	if !c.Writer.Written() {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "internal server error",
		})
	}
}

// PanicRecoveryMiddleware handles panics: it logs them with full exception
// info, records an error metric when a collector is wired, and answers 500.
// A panic in business logic never propagates past the observability layer.
func PanicRecoveryMiddleware(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(c.Request.Context()).Error(
					"Recovered from panic in http handler", logger.WithPanic(r)...)
				if env.IsLocalApplicationEnv() {
					// pretty print the stack trace to the local console to make it human-readable
					_, _ = fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
				}
				if collector != nil {
					collector.RecordError(c.Request.Method, c.Request.URL.Path, "panic", fmt.Sprintf("%v", r))
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// TimeoutMiddleware sets a timeout on the request context
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
