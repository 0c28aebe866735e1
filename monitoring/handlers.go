package monitoring

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/applyflow/telemetry/analyzer"
	"github.com/applyflow/telemetry/common/config"
	"github.com/applyflow/telemetry/common/logger"
	"github.com/applyflow/telemetry/metrics"
)

const (
	defaultLogLimit   = 100
	defaultWindowMin  = 60
	defaultErrorLimit = 50
)

// resolveLogFile maps the optional log_file parameter onto a file inside the
// configured log directory. Only base names are accepted, so callers cannot
// traverse out of the directory.
func (s *Server) resolveLogFile(requested string) (string, error) {
	if requested == "" {
		return s.cfg.LogFilePath(), nil
	}
	if requested != filepath.Base(requested) {
		return "", errors.Mark(errors.Newf("log_file must be a plain file name, got %q", requested), analyzer.ErrValidation)
	}
	return filepath.Join(s.cfg.LogDir, requested), nil
}

// availableLogs lists the log files callers may query, for 404 responses.
func (s *Server) availableLogs() []string {
	entries, err := os.ReadDir(s.cfg.LogDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".log" {
			out = append(out, e.Name())
		}
	}
	return out
}

func (s *Server) openAnalysis(c *gin.Context, requested string) (*analyzer.Analysis, bool) {
	path, err := s.resolveLogFile(requested)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return nil, false
	}

	if _, statErr := os.Stat(path); statErr != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"message":        "log file not found",
			"available_logs": s.availableLogs(),
		})
		return nil, false
	}

	analysis, err := analyzer.ParseFile(path)
	if err != nil {
		s.log.Error("log analysis failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "log analysis failed"})
		return nil, false
	}
	return analysis, true
}

// handleLogs implements GET /logs with level, correlation_id, start_time,
// end_time, search, limit and log_file query parameters.
func (s *Server) handleLogs(c *gin.Context) {
	filter := analyzer.Filter{
		Level:         c.Query("level"),
		CorrelationID: c.Query("correlation_id"),
		Search:        c.Query("search"),
		Limit:         defaultLogLimit,
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}
	for param, dst := range map[string]*time.Time{
		"start_time": &filter.Start,
		"end_time":   &filter.End,
	} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": param + " must be RFC3339"})
			return
		}
		*dst = ts
	}

	analysis, ok := s.openAnalysis(c, c.Query("log_file"))
	if !ok {
		return
	}

	entries := analysis.Filter(filter)
	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"count":     len(entries),
		"malformed": analysis.Malformed,
	})
}

// handleHealth implements GET /health. Detailed mode adds resource checks.
// Answers 200 when healthy, 503 otherwise, so load balancers can use it
// directly.
func (s *Server) handleHealth(c *gin.Context) {
	report := s.registry.RunChecks(c.Request.Context())

	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"overall_status": report.OverallStatus,
		"checks":         report.Checks,
		"checked_at":     report.CheckedAt,
	}
	if c.Query("detailed") != "" {
		if free, err := config.DiskFreeBytes(s.cfg.LogDir); err == nil {
			body["disk_usage"] = gin.H{
				"log_dir":    s.cfg.LogDir,
				"free_bytes": free,
			}
		}
		body["resources"] = gin.H{
			"log_file":  s.cfg.LogFilePath(),
			"retention": s.cfg.RetentionWindow.String(),
		}
	}
	c.JSON(status, body)
}

// handleMetrics implements GET /metrics with optional path and minutes
// parameters.
func (s *Server) handleMetrics(c *gin.Context) {
	window, ok := windowFromQuery(c, defaultWindowMin)
	if !ok {
		return
	}

	if path := c.Query("path"); path != "" {
		stats, found := s.collector.RequestMetrics(path)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"message": "no metrics recorded for path"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": path, "requests": stats})
		return
	}

	custom := make(map[string]metrics.Summary)
	for _, name := range s.collector.SeriesNames() {
		if sum, found := s.collector.SeriesSummary(name, window); found {
			custom[name] = sum
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"window_minutes": int(window.Minutes()),
		"requests":       s.collector.AllRequestMetrics(),
		"custom_metrics": custom,
		"errors":         s.collector.ErrorsSummary(window),
	})
}

// handleErrors implements GET /errors: the collector's windowed error
// summary plus recent error entries from the log file.
func (s *Server) handleErrors(c *gin.Context) {
	window, ok := windowFromQuery(c, defaultWindowMin)
	if !ok {
		return
	}
	limit := defaultErrorLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	body := gin.H{"summary": s.collector.ErrorsSummary(window)}

	var analysis *analyzer.Analysis
	if requested := c.Query("log_file"); requested != "" {
		// An explicitly named file gets the full resolution treatment,
		// including 400 on traversal attempts and 404 when absent.
		a, ok := s.openAnalysis(c, requested)
		if !ok {
			return
		}
		analysis = a
	} else if a, parseErr := analyzer.ParseFile(s.cfg.LogFilePath()); parseErr == nil {
		// The implicit default file is best effort: the service may not
		// have written anything yet, and the summary is still useful.
		analysis = a
	}
	if analysis != nil {
		body["recent_entries"] = analysis.Filter(analyzer.Filter{
			Level: "error",
			Start: time.Now().Add(-window),
			Limit: limit,
		})
		body["log_error_types"] = analysis.ErrorSummary()
	}

	c.JSON(http.StatusOK, body)
}

type traceRequest struct {
	CorrelationID string `json:"correlation_id" binding:"required"`
	LogFile       string `json:"log_file"`
}

// handleTrace implements POST /trace: the full ordered timeline of one
// request, or 404 when the correlation id is unknown.
func (s *Server) handleTrace(c *gin.Context) {
	var req traceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "correlation_id is required"})
		return
	}

	analysis, ok := s.openAnalysis(c, req.LogFile)
	if !ok {
		return
	}

	timeline, err := analysis.TraceRequest(req.CorrelationID)
	switch {
	case errors.Is(err, analyzer.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	case errors.Is(err, analyzer.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "correlation id not found"})
		return
	case err != nil:
		s.log.Error("trace reconstruction failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "trace reconstruction failed"})
		return
	}

	var total time.Duration
	if len(timeline) > 1 {
		total = timeline[len(timeline)-1].Timestamp.Sub(timeline[0].Timestamp)
	}
	c.JSON(http.StatusOK, gin.H{
		"correlation_id": req.CorrelationID,
		"events":         timeline,
		"event_count":    len(timeline),
		"total_ms":       float64(total) / float64(time.Millisecond),
	})
}

// handleStatus implements GET /status: the capability and configuration
// self-description. Secrets never appear here.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "telemetry-monitoring",
		"endpoints": []string{
			"GET /logs", "GET /health", "GET /metrics",
			"GET /errors", "POST /trace", "GET /status",
			"GET /metrics/prometheus",
		},
		"config": gin.H{
			"log_level":      s.cfg.LogLevel,
			"log_encoding":   s.cfg.LogEncoding,
			"log_dir":        s.cfg.LogDir,
			"retention":      s.cfg.RetentionWindow.String(),
			"dev_mode":       s.cfg.DevMode,
			"excluded_paths": s.cfg.ExcludedPaths,
			"health_probes":  s.registry.Names(),
			"custom_metrics": s.collector.SeriesNames(),
		},
	})
}

func windowFromQuery(c *gin.Context, defaultMinutes int) (time.Duration, bool) {
	raw := c.Query("minutes")
	if raw == "" {
		return time.Duration(defaultMinutes) * time.Minute, true
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "minutes must be a positive integer"})
		return 0, false
	}
	return time.Duration(minutes) * time.Minute, true
}
