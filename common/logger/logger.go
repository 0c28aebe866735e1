package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/applyflow/telemetry/common/env"
	"github.com/applyflow/telemetry/common/scrub"
)

const MessageKey = "message"

// Logger wraps zap with PII scrubbing and level helpers. All records emitted
// through it pass through the configured scrubber before hitting any sink.
type Logger struct {
	*zap.Logger
}

func NewLogger(z *zap.Logger) *Logger {
	return &Logger{Logger: z}
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

func (l *Logger) WithOptions(opts ...zap.Option) *Logger {
	return &Logger{Logger: l.Logger.WithOptions(opts...)}
}

// Sync flushes buffered records. Stdout cannot be fsynced when it is a pipe
// or terminal, so those errors are swallowed rather than reported to callers.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if err == nil || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.ENOTSUP) {
		return nil
	}
	return err
}

// Log emits a record at an arbitrary level, used where the level is computed
// at runtime (e.g. from an HTTP status class).
func (l *Logger) Log(level Level, msg string, fields ...Field) {
	if ce := l.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Printf-style methods satisfying logging interfaces of client libraries
// (resty, the dd tracer adapter).
func (l *Logger) Debugf(format string, args ...any) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.Error(fmt.Sprintf(format, args...)) }

var (
	instanceMu sync.RWMutex
	instance   *Logger
)

// Instance returns the process-wide logger, lazily initializing a default
// one on first use. Hosts normally call Init at startup and never hit the
// lazy path.
func Instance() *Logger {
	instanceMu.RLock()
	log := instance
	instanceMu.RUnlock()
	if log != nil {
		return log
	}

	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		log, err := Init()
		if err != nil {
			log = NewLogger(zap.NewNop())
		}
		instance = log
	}
	return instance
}

// ReplaceInstance swaps the process-wide logger, returning the previous one.
func ReplaceInstance(log *Logger) *Logger {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	prev := instance
	instance = log
	return prev
}

type initCfg struct {
	level       Level
	encoding    string
	filePath    string
	maxBytes    int
	backupCount int
	scrubber    *scrub.Scrubber
	noiseFloor  Level
	noisy       []string
	zapOpts     []zap.Option
}

type Option func(cfg *initCfg)

// WithLevel sets the minimum severity. The default follows the environment
// preset, see env.LogPreset.
func WithLevel(level Level) Option {
	return func(cfg *initCfg) {
		cfg.level = level
	}
}

// WithEncoding selects "json" or "console" output. The default follows the
// environment preset: console locally, JSON everywhere else.
func WithEncoding(encoding string) Option {
	return func(cfg *initCfg) {
		cfg.encoding = encoding
	}
}

// WithRotatingFile adds a size-rotated file sink next to stdout.
func WithRotatingFile(path string, maxBytes int, backupCount int) Option {
	return func(cfg *initCfg) {
		cfg.filePath = path
		cfg.maxBytes = maxBytes
		cfg.backupCount = backupCount
	}
}

// WithScrubber overrides the default PII scrubber.
func WithScrubber(s *scrub.Scrubber) Option {
	return func(cfg *initCfg) {
		cfg.scrubber = s
	}
}

// WithNoiseClamp raises the severity floor for the named logger prefixes so
// chatty third-party components cannot drown out application records.
func WithNoiseClamp(floor Level, loggerPrefixes ...string) Option {
	return func(cfg *initCfg) {
		cfg.noiseFloor = floor
		cfg.noisy = append(cfg.noisy, loggerPrefixes...)
	}
}

// WithZapOptions appends raw zap options to the built logger.
func WithZapOptions(opts ...zap.Option) Option {
	return func(cfg *initCfg) {
		cfg.zapOpts = append(cfg.zapOpts, opts...)
	}
}

// Init builds the structured logger: environment-appropriate encoder, stdout
// sink plus optional rotating file sink, scrubbing core, and noise clamping.
func Init(opts ...Option) (*Logger, error) {
	preset := env.GetApplicationEnvSafe().LogPreset()
	cfg := &initCfg{
		level:      InfoLevel,
		scrubber:   scrub.New(),
		noiseFloor: WarnLevel,
	}
	if preset.Verbose {
		cfg.level = DebugLevel
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.encoding == "" {
		if preset.Console {
			cfg.encoding = EncodingConsole
		} else {
			cfg.encoding = EncodingJSON
		}
	}

	consoleEnc, err := newEncoder(cfg.encoding)
	if err != nil {
		return nil, err
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), cfg.level),
	}
	if cfg.filePath != "" {
		// File sink always uses the machine-parseable encoding so the
		// analyzer can read it back regardless of console settings.
		fileEnc, encErr := newEncoder(EncodingJSON)
		if encErr != nil {
			return nil, encErr
		}
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.filePath,
			MaxSize:    maxMegabytes(cfg.maxBytes),
			MaxBackups: cfg.backupCount,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(fileEnc, sink, cfg.level))
	}

	core := zapcore.NewTee(cores...)
	core = NewScrubCore(core, cfg.scrubber)
	if len(cfg.noisy) > 0 {
		core = newNoiseCore(core, cfg.noiseFloor, cfg.noisy)
	}

	zapOpts := append([]zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(ErrorLevel),
	}, cfg.zapOpts...)

	return NewLogger(zap.New(core, zapOpts...)), nil
}

// Supported encodings.
const (
	EncodingJSON    = "json"
	EncodingConsole = "console"
)

// SupportedEncodings lists the encodings accepted by configuration.
var SupportedEncodings = []string{EncodingJSON, EncodingConsole}

func newEncoder(encoding string) (zapcore.Encoder, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey, // Hide function name for brevity
		MessageKey:     MessageKey,
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.ISO8601TimeEncoder,  // Use human-readable timestamp format
		EncodeLevel:    zapcore.CapitalLevelEncoder, // INFO, WARN, ERROR, etc.
		EncodeCaller:   zapcore.ShortCallerEncoder,  // Short file path
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	switch encoding {
	case EncodingJSON:
		return zapcore.NewJSONEncoder(encoderConfig), nil
	case EncodingConsole:
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig), nil
	}
	return nil, fmt.Errorf("unknown log encoding %q, must be %q or %q", encoding, EncodingJSON, EncodingConsole)
}

func maxMegabytes(maxBytes int) int {
	const megabyte = 1024 * 1024
	if maxBytes <= 0 {
		return 10
	}
	mb := maxBytes / megabyte
	if mb < 1 {
		mb = 1
	}
	return mb
}
