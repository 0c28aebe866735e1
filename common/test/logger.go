package test

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/applyflow/telemetry/common/logger"
	"github.com/applyflow/telemetry/common/scrub"
)

// NewLogger returns a logger that only prints if a test fails. Records pass
// through the same PII redaction as production sinks, so tests observe the
// output that would actually be written.
func NewLogger(t *testing.T) *logger.Logger {
	z := zaptest.NewLogger(t, zaptest.WrapOptions(
		zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return logger.NewScrubCore(c, scrub.New())
		}),
	))
	return logger.NewLogger(z)
}
