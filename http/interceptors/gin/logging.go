package gin

import (
	"bytes"
	"io"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/applyflow/telemetry/common/logger"
)

type loggingCfg struct {
	debug    bool
	trace    bool
	excluded []string
}

type responseWriterCapture struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriterCapture) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// RequestLogging emits the inbound request summary (unless the path is
// exclude-listed) and the outcome line after the handler ran. The outcome
// severity follows the status class: >=500 error, >=400 warn, else info.
func RequestLogging(cfg loggingCfg) gin.HandlerFunc {
	return func(c *gin.Context) {
		excluded := slices.Contains(cfg.excluded, c.Request.URL.Path)
		ctx := c.Request.Context()
		var reqBody, respBody []byte

		// Capture the request body if trace logging is enabled
		if cfg.trace && c.Request.Body != nil {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err == nil {
				reqBody = bodyBytes
				// Restore the request body for downstream handlers
				c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}
		}

		if !excluded {
			logger.FromContext(ctx).Info("Request started",
				logger.String("method", c.Request.Method),
				logger.String("path", c.Request.URL.Path),
				logger.String("client_ip", c.ClientIP()),
				logger.String("component", componentName),
			)
		}

		// Record start time for duration calculation
		start := time.Now()

		// Set up response body capture if trace logging is enabled
		var responseCapture *responseWriterCapture
		if cfg.trace {
			responseCapture = &responseWriterCapture{
				ResponseWriter: c.Writer,
				body:           &bytes.Buffer{},
			}
			c.Writer = responseCapture
		}

		// Proceed to the next middleware or handler
		c.Next()

		if excluded {
			return
		}

		// Extract response body if it was captured
		if cfg.trace && responseCapture != nil {
			respBody = responseCapture.body.Bytes()
		}

		duration := time.Since(start)
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", duration),
			logger.String("component", componentName),
		}

		if cfg.trace {
			fields = append(fields,
				logger.ByteString("request_body", reqBody),
				logger.ByteString("response_body", respBody),
			)
		}

		// Determine log level based on status code
		logLevel := logger.InfoLevel
		if c.Writer.Status() >= 500 {
			logLevel = logger.ErrorLevel
		} else if c.Writer.Status() >= 400 {
			logLevel = logger.WarnLevel
		}

		logger.FromContext(ctx).Log(logLevel, "Request completed", fields...)
	}
}
