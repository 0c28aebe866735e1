package gin

import (
	"github.com/gin-gonic/gin"

	"github.com/applyflow/telemetry/common/correlation"
	"github.com/applyflow/telemetry/common/headers"
)

// CorrelationMiddleware creates the RequestContext for the request: it
// adopts the correlation id from the inbound header when present, generates
// one otherwise, attaches the context for implicit propagation, and echoes
// the id on the response so callers can quote it back.
//
// Teardown always detaches the RequestContext, panic or not, so identity
// never leaks into the next request handled by the same goroutine.
func CorrelationMiddleware(c *gin.Context) {
	rc := correlation.New(
		c.Request.Method,
		c.Request.URL.Path,
		correlation.WithCorrelationID(c.GetHeader(headers.HeaderXCorrelationID)),
		correlation.WithIPAddress(c.ClientIP()),
		correlation.WithUserID(c.GetHeader(headers.HeaderXUserID)),
	)

	ctx := correlation.WithContext(c.Request.Context(), rc)
	c.Request = c.Request.WithContext(ctx)
	c.Writer.Header().Set(headers.HeaderXCorrelationID, rc.CorrelationID)

	defer func() {
		c.Request = c.Request.WithContext(correlation.ClearFromContext(c.Request.Context()))
	}()

	c.Next()
}
