package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/applyflow/telemetry/common/scrub"
)

// scrubCore rewrites record messages and fields through the PII scrubber
// before delegating to the wrapped core. It also guards against fields whose
// encoding panics: a malformed record degrades to a best-effort string
// representation instead of crashing the caller.
type scrubCore struct {
	zapcore.Core
	scrubber *scrub.Scrubber
}

// NewScrubCore wraps any zap core with the redaction layer. Hosts building
// their own cores (test loggers included) use this to keep the same
// guarantees as Init-built sinks.
func NewScrubCore(core zapcore.Core, scrubber *scrub.Scrubber) zapcore.Core {
	return &scrubCore{Core: core, scrubber: scrubber}
}

func (c *scrubCore) With(fields []zapcore.Field) zapcore.Core {
	return &scrubCore{Core: c.Core.With(c.scrubFields(fields)), scrubber: c.scrubber}
}

func (c *scrubCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *scrubCore) Write(ent zapcore.Entry, fields []zapcore.Field) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ent.Message = c.scrubber.ScrubString(ent.Message)
			err = c.Core.Write(ent, []zapcore.Field{
				zap.String("log_degraded", fmt.Sprintf("unserializable fields: %v", r)),
			})
		}
	}()

	ent.Message = c.scrubber.ScrubString(ent.Message)
	return c.Core.Write(ent, c.scrubFields(fields))
}

func (c *scrubCore) scrubFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = c.scrubField(f)
	}
	return out
}

func (c *scrubCore) scrubField(f zapcore.Field) zapcore.Field {
	if c.scrubber.IsSensitiveKey(f.Key) {
		return zap.String(f.Key, scrub.Mask)
	}

	switch f.Type {
	case zapcore.StringType:
		f.String = c.scrubber.ScrubString(f.String)
		return f
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			return zap.ByteString(f.Key, []byte(c.scrubber.ScrubString(string(b))))
		}
		return f
	case zapcore.ErrorType:
		if errVal, ok := f.Interface.(error); ok && errVal != nil {
			return zap.NamedError(f.Key, fmt.Errorf("%s", c.scrubber.ScrubString(errVal.Error())))
		}
		return f
	case zapcore.StringerType:
		return zap.String(f.Key, c.scrubber.ScrubString(stringify(f.Interface)))
	case zapcore.ReflectType:
		return zap.Any(f.Key, c.scrubber.ScrubValue(f.Interface))
	case zapcore.ArrayMarshalerType, zapcore.ObjectMarshalerType:
		return c.scrubMarshaler(f)
	default:
		return f
	}
}

// scrubMarshaler flattens an array or object field through a map encoder so
// its elements pass through ScrubValue like any other nested value. Fields
// like Strings carry their payload behind a marshaler and would otherwise
// bypass redaction entirely.
func (c *scrubCore) scrubMarshaler(f zapcore.Field) zapcore.Field {
	enc := zapcore.NewMapObjectEncoder()
	f.AddTo(enc)
	v, ok := enc.Fields[f.Key]
	if !ok {
		// A marshaler that produced nothing cannot be verified, mask it.
		return zap.String(f.Key, scrub.Mask)
	}
	return zap.Any(f.Key, c.scrubber.ScrubValue(v))
}

// stringify calls String() defensively: a panicking Stringer must not take
// the log statement down with it.
func stringify(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("PANIC=%v", r)
		}
	}()
	if str, ok := v.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprint(v)
}

// noiseCore raises the severity floor for named logger prefixes, clamping
// chatty third-party components to the configured minimum.
type noiseCore struct {
	zapcore.Core
	floor    zapcore.Level
	prefixes []string
}

func newNoiseCore(core zapcore.Core, floor zapcore.Level, prefixes []string) zapcore.Core {
	return &noiseCore{Core: core, floor: floor, prefixes: prefixes}
}

func (c *noiseCore) With(fields []zapcore.Field) zapcore.Core {
	return &noiseCore{Core: c.Core.With(fields), floor: c.floor, prefixes: c.prefixes}
}

func (c *noiseCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.clamped(ent.LoggerName) && ent.Level < c.floor {
		return ce
	}
	return c.Core.Check(ent, ce)
}

func (c *noiseCore) clamped(loggerName string) bool {
	for _, p := range c.prefixes {
		if len(loggerName) >= len(p) && loggerName[:len(p)] == p {
			return true
		}
	}
	return false
}
