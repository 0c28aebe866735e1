package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/applyflow/telemetry/common/logger"
)

// ErrConfig marks fatal configuration errors. A process must not start its
// observability stack when ValidateAll reports one.
var ErrConfig = errors.New("invalid observability configuration")

// Disk headroom thresholds for the log directory's filesystem.
const (
	// DiskHardMinimumBytes below this free space validation fails.
	DiskHardMinimumBytes = uint64(100 * 1024 * 1024)
	// DiskWarnThresholdBytes below this free space validation warns.
	DiskWarnThresholdBytes = uint64(1024 * 1024 * 1024)
)

// Report is the structured outcome of ValidateAll.
type Report struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Config   *Config  `json:"config"`
}

func errReadConfig(source string, err error) error {
	return errors.Mark(errors.Wrapf(err, "failed to read configuration from %s", source), ErrConfig)
}

func errUnmarshal(err error) error {
	return errors.Mark(errors.Wrap(err, "failed to unmarshal configuration"), ErrConfig)
}

// ValidateAll runs every startup check and returns the full report rather
// than stopping at the first failure, so operators can fix a bad deployment
// in one pass. The config value is returned inside the report with secrets
// still intact; callers expose it only through scrubbed channels.
func (c *Config) ValidateAll(log *logger.Logger) Report {
	report := Report{Config: c}

	report.collect(c.validateShape())
	report.collect(c.validateLogDir())
	c.validateDisk(&report)
	c.validateAuth(&report, log)

	report.Valid = len(report.Errors) == 0
	return report
}

// MustValidate is the fail-fast variant used at process startup.
func (c *Config) MustValidate(log *logger.Logger) error {
	report := c.ValidateAll(log)
	if report.Valid {
		return nil
	}
	return errors.Mark(errors.Newf("configuration invalid: %v", report.Errors), ErrConfig)
}

func (r *Report) collect(errs []error) {
	for _, err := range errs {
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
		}
	}
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// validateShape checks scalar bounds via struct tags: level and encoding
// enums, rotation sizing, backup count.
func (c *Config) validateShape() []error {
	validate := validator.New()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{errors.Mark(err, ErrConfig)}
	}

	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, errors.Mark(describeFieldError(fe), ErrConfig))
	}
	return out
}

func describeFieldError(fe validator.FieldError) error {
	switch fe.StructField() {
	case "LogLevel":
		return errors.Newf("log_level %q is not valid, use one of debug, info, warn, error, fatal", fe.Value())
	case "LogEncoding":
		return errors.Newf("log_encoding %q is not valid, use json or console", fe.Value())
	case "MaxBytes":
		return errors.Newf("max_bytes %v is out of range, use a value between 1KiB and 1GiB", fe.Value())
	case "BackupCount":
		return errors.Newf("backup_count %v is out of range, use a value between 0 and 100", fe.Value())
	default:
		return errors.Newf("%s failed validation rule %q (value %v)", fe.StructNamespace(), fe.Tag(), fe.Value())
	}
}

// validateLogDir ensures the log directory exists (creating it if absent)
// and is writable by actually writing a probe file.
func (c *Config) validateLogDir() []error {
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return []error{errors.Mark(
			errors.Wrapf(err, "log directory %s does not exist and could not be created", c.LogDir), ErrConfig)}
	}

	probe := filepath.Join(c.LogDir, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return []error{errors.Mark(
			errors.Wrapf(err, "log directory %s is not writable", c.LogDir), ErrConfig)}
	}
	_ = os.Remove(probe)
	return nil
}

func (c *Config) validateDisk(report *Report) {
	free, err := DiskFreeBytes(c.LogDir)
	if err != nil {
		// Inability to stat the filesystem is transient/operational, not a
		// reason to refuse startup.
		report.warn("could not determine free disk space for %s: %v", c.LogDir, err)
		return
	}
	if free < DiskHardMinimumBytes {
		report.collect([]error{errors.Mark(
			errors.Newf("free disk space %d bytes under %s is below the required minimum of %d bytes",
				free, c.LogDir, DiskHardMinimumBytes), ErrConfig)})
		return
	}
	if free < DiskWarnThresholdBytes {
		report.warn("free disk space %d bytes under %s is below the recommended %d bytes", free, c.LogDir, DiskWarnThresholdBytes)
	}
}

func (c *Config) validateAuth(report *Report, log *logger.Logger) {
	if c.APIKey != "" {
		return
	}
	if c.DevMode {
		// The bypass is allowed but never silent.
		report.warn("monitoring API authentication disabled by dev_mode")
		log.Warn("monitoring API authentication disabled by dev_mode")
		return
	}
	report.collect([]error{errors.Mark(
		errors.New("api_key is required for the monitoring API, set TELEMETRY_API_KEY or enable dev_mode explicitly"), ErrConfig)})
}
