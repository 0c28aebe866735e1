// Package observability assembles the telemetry stack: scrubbed structured
// logging, request correlation, metrics aggregation, rate limiting, router
// middleware and the monitoring API, built once at startup and passed by
// reference to whoever needs it.
package observability

import (
	"context"

	"github.com/applyflow/telemetry/common/config"
	"github.com/applyflow/telemetry/common/logger"
	"github.com/applyflow/telemetry/common/scrub"
	"github.com/applyflow/telemetry/health"
	"github.com/applyflow/telemetry/metrics"
	"github.com/applyflow/telemetry/monitoring"
	"github.com/applyflow/telemetry/ratelimit"
)

// Observability holds every component of the running telemetry stack.
type Observability struct {
	Config    *config.Config
	Logger    *logger.Logger
	Scrubber  *scrub.Scrubber
	Collector *metrics.Collector
	Limiter   *ratelimit.Limiter
	Health    *health.Registry
	Monitor   *monitoring.Server

	cancel context.CancelFunc
}

type initCfg struct {
	scrubOpts      []scrub.Option
	loggerOpts     []logger.Option
	tracing        *tracingCfg
	probes         map[string]health.ProbeFunc
	skipDiskProbes bool
}

// Option customizes Init.
type Option func(c *initCfg)

// WithScrubOptions forwards options to the PII scrubber.
func WithScrubOptions(opts ...scrub.Option) Option {
	return func(c *initCfg) {
		c.scrubOpts = append(c.scrubOpts, opts...)
	}
}

// WithLoggerOptions forwards options to the logger initialization.
func WithLoggerOptions(opts ...logger.Option) Option {
	return func(c *initCfg) {
		c.loggerOpts = append(c.loggerOpts, opts...)
	}
}

// WithHealthProbe registers an additional named probe at startup. Business
// modules can keep registering more later via the registry.
func WithHealthProbe(name string, probe health.ProbeFunc) Option {
	return func(c *initCfg) {
		c.probes[name] = probe
	}
}

// WithoutBuiltinProbes skips the default disk and log-dir probes, for
// environments where the registry is fully caller-managed.
func WithoutBuiltinProbes() Option {
	return func(c *initCfg) {
		c.skipDiskProbes = true
	}
}

// Init builds the full stack from a validated configuration. It fails fast
// on configuration errors: running half-observable is worse than not
// starting.
func Init(cfg *config.Config, opts ...Option) (*Observability, error) {
	ic := &initCfg{probes: make(map[string]health.ProbeFunc)}
	for _, opt := range opts {
		opt(ic)
	}

	scrubber := scrub.New(ic.scrubOpts...)

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	loggerOpts := append([]logger.Option{
		logger.WithLevel(level),
		logger.WithEncoding(cfg.LogEncoding),
		logger.WithScrubber(scrubber),
		logger.WithRotatingFile(cfg.LogFilePath(), int(cfg.MaxBytes), cfg.BackupCount),
	}, ic.loggerOpts...)

	log, err := logger.Init(loggerOpts...)
	if err != nil {
		return nil, err
	}
	logger.ReplaceInstance(log)

	if err := cfg.MustValidate(log); err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(
		metrics.WithRetention(cfg.RetentionWindow),
		metrics.WithLogger(log),
	)
	limiter := ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitRefill,
		ratelimit.WithSweepInterval(cfg.RateLimitSweep),
		ratelimit.WithMaxKeys(cfg.RateLimitMaxKeys),
		ratelimit.WithLogger(log),
	)

	registry := health.NewRegistry(log)
	if !ic.skipDiskProbes {
		registry.Register("disk_space", health.DiskSpaceProbe(cfg.LogDir, config.DiskHardMinimumBytes))
		registry.Register("log_dir_writable", health.WritableDirProbe(cfg.LogDir))
	}
	for name, probe := range ic.probes {
		registry.Register(name, probe)
	}

	ctx, cancel := context.WithCancel(context.Background())
	collector.StartCleanup(ctx, cfg.RetentionWindow/4)
	limiter.StartSweeper(ctx)

	obs := &Observability{
		Config:    cfg,
		Logger:    log,
		Scrubber:  scrubber,
		Collector: collector,
		Limiter:   limiter,
		Health:    registry,
		Monitor:   monitoring.NewServer(cfg, collector, registry, log),
		cancel:    cancel,
	}

	if ic.tracing != nil {
		startTracer(ic.tracing, log)
	}

	log.Info("observability stack initialized",
		logger.String("log_level", cfg.LogLevel),
		logger.String("log_encoding", cfg.LogEncoding),
		logger.String("log_file", cfg.LogFilePath()),
	)
	return obs, nil
}

// Shutdown stops the background cleanup and sweep goroutines and flushes
// buffered log records.
func (o *Observability) Shutdown() {
	if o.cancel != nil {
		o.cancel()
	}
	stopTracer()
	_ = o.Logger.Sync()
}
