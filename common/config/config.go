// Package config loads and validates the observability configuration. It is
// env-first with optional .env and YAML file support, and every check fails
// fast at startup with an actionable message rather than allowing a silently
// misconfigured telemetry stack.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/applyflow/telemetry/common/logger"
)

const envPrefix = "TELEMETRY"

// Config holds every recognized observability option.
type Config struct {
	LogLevel    string `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
	LogEncoding string `mapstructure:"log_encoding" validate:"required,oneof=json console"`
	LogDir      string `mapstructure:"log_dir" validate:"required"`
	LogFile     string `mapstructure:"log_file" validate:"required"`
	MaxBytes    int64  `mapstructure:"max_bytes" validate:"gte=1024,lte=1073741824"`
	BackupCount int    `mapstructure:"backup_count" validate:"gte=0,lte=100"`

	// Monitoring API
	APIKey         string `mapstructure:"api_key"`
	DevMode        bool   `mapstructure:"dev_mode"`
	MonitoringAddr string `mapstructure:"monitoring_addr"`

	// Middleware
	ExcludedPaths []string `mapstructure:"excluded_paths"`

	// Metrics
	RetentionWindow time.Duration `mapstructure:"retention_window" validate:"gt=0"`

	// Rate limiting
	RateLimitCapacity float64       `mapstructure:"rate_limit_capacity" validate:"gt=0"`
	RateLimitRefill   float64       `mapstructure:"rate_limit_refill" validate:"gt=0"`
	RateLimitSweep    time.Duration `mapstructure:"rate_limit_sweep" validate:"gt=0"`
	RateLimitMaxKeys  int           `mapstructure:"rate_limit_max_keys" validate:"gt=0"`
}

// LogFilePath joins the log directory and file name.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir, c.LogFile)
}

type loadCfg struct {
	dotenvPath string
	yamlPath   string
}

// LoadOption customizes Load.
type LoadOption func(*loadCfg)

// WithDotenv loads the given .env file before reading the environment.
// A missing file is not an error; local-only convenience.
func WithDotenv(path string) LoadOption {
	return func(c *loadCfg) {
		c.dotenvPath = path
	}
}

// WithYAMLFile layers a YAML config file under the environment variables.
func WithYAMLFile(path string) LoadOption {
	return func(c *loadCfg) {
		c.yamlPath = path
	}
}

// Load reads configuration from the environment (TELEMETRY_* variables),
// optionally preceded by a .env file and a YAML file. Defaults are sane for
// local development. Load does not validate; call ValidateAll on the result.
func Load(log *logger.Logger, opts ...LoadOption) (*Config, error) {
	lc := &loadCfg{}
	for _, opt := range opts {
		opt(lc)
	}

	if lc.dotenvPath != "" {
		if err := godotenv.Load(lc.dotenvPath); err != nil {
			log.Debug("no .env file loaded", logger.String("path", lc.dotenvPath))
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if lc.yamlPath != "" {
		v.SetConfigFile(lc.yamlPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errReadConfig(lc.yamlPath, err)
		}
		log.Info("loaded configuration file", logger.String("path", lc.yamlPath))
	}

	// viper.AutomaticEnv does not surface env-only keys through Unmarshal
	// unless each key is bound explicitly.
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, errReadConfig(key, err)
		}
	}

	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, errUnmarshal(err)
	}
	return conf, nil
}

var configKeys = []string{
	"log_level", "log_encoding", "log_dir", "log_file",
	"max_bytes", "backup_count",
	"api_key", "dev_mode", "monitoring_addr",
	"excluded_paths", "retention_window",
	"rate_limit_capacity", "rate_limit_refill", "rate_limit_sweep", "rate_limit_max_keys",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_encoding", logger.EncodingJSON)
	v.SetDefault("log_dir", "./logs")
	v.SetDefault("log_file", "telemetry.log")
	v.SetDefault("max_bytes", 10*1024*1024)
	v.SetDefault("backup_count", 5)
	v.SetDefault("monitoring_addr", ":9090")
	v.SetDefault("excluded_paths", []string{"/health", "/metrics"})
	v.SetDefault("retention_window", time.Hour)
	v.SetDefault("rate_limit_capacity", 100)
	v.SetDefault("rate_limit_refill", 10)
	v.SetDefault("rate_limit_sweep", 5*time.Minute)
	v.SetDefault("rate_limit_max_keys", 10_000)
}
