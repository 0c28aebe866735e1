// Package analyzer provides offline diagnostics over the structured log
// files written by the logger's JSON sink: filtering, per-request timeline
// reconstruction, error grouping and slow-operation ranking.
package analyzer

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/applyflow/telemetry/common/correlation"
)

// ErrValidation marks caller mistakes: malformed correlation ids, unknown
// identifiers. The monitoring API maps it to 4xx, never 500.
var ErrValidation = errors.New("validation failed")

// ErrNotFound marks lookups with no matching data.
var ErrNotFound = errors.New("not found")

// maxScanTokenSize admits log lines up to 1MiB; anything longer is counted
// as malformed.
const maxScanTokenSize = 1024 * 1024

// Entry is one parsed log record.
type Entry struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         string         `json:"level"`
	Logger        string         `json:"logger,omitempty"`
	Caller        string         `json:"caller,omitempty"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Stacktrace    string         `json:"stacktrace,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// TraceEvent is one step of a reconstructed request timeline.
type TraceEvent struct {
	Entry
	ElapsedFromPrev time.Duration `json:"elapsed_from_prev_ms"`
}

// SlowOperation ranks one log record by its recorded duration.
type SlowOperation struct {
	Entry
	Duration time.Duration `json:"duration_ms"`
}

// Analysis holds the parsed content of one log file.
type Analysis struct {
	Entries   []Entry
	Malformed int
}

// Keys the JSON encoder writes as top-level record fields; everything else
// lands in Entry.Fields.
var reservedKeys = map[string]bool{
	"timestamp": true, "level": true, "logger": true,
	"caller": true, "message": true, "stacktrace": true,
	correlation.IDKey: true,
}

// ParseFile reads a structured log file, one JSON record per line.
// Malformed lines are counted and skipped, not fatal: a log file being
// appended to mid-line must still be analyzable.
func ParseFile(path string) (*Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open log file %s", path)
	}
	defer func() { _ = f.Close() }()

	analysis := &Analysis{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, ok := parseLine(line)
		if !ok {
			analysis.Malformed++
			continue
		}
		analysis.Entries = append(analysis.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading log file %s", path)
	}
	return analysis, nil
}

func parseLine(line string) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}

	entry := Entry{Fields: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "timestamp":
			if s, ok := v.(string); ok {
				if ts, err := parseTimestamp(s); err == nil {
					entry.Timestamp = ts
				}
			}
		case "level":
			entry.Level, _ = v.(string)
		case "logger":
			entry.Logger, _ = v.(string)
		case "caller":
			entry.Caller, _ = v.(string)
		case "message":
			entry.Message, _ = v.(string)
		case "stacktrace":
			entry.Stacktrace, _ = v.(string)
		case correlation.IDKey:
			entry.CorrelationID, _ = v.(string)
		default:
			entry.Fields[k] = v
		}
	}
	if entry.Timestamp.IsZero() && entry.Message == "" {
		return Entry{}, false
	}
	return entry, true
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04:05.000Z0700",
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized timestamp %q", s)
}

// Filter describes an entry query; zero values mean "no constraint".
type Filter struct {
	Level         string
	CorrelationID string
	Start         time.Time
	End           time.Time
	Search        string
	Pattern       *regexp.Regexp
	Limit         int
}

// Filter returns entries matching every set constraint, in file order.
func (a *Analysis) Filter(f Filter) []Entry {
	var out []Entry
	for _, e := range a.Entries {
		if f.Level != "" && !strings.EqualFold(e.Level, f.Level) {
			continue
		}
		if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
			continue
		}
		if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && e.Timestamp.After(f.End) {
			continue
		}
		if f.Search != "" && !strings.Contains(e.Message, f.Search) {
			continue
		}
		if f.Pattern != nil && !f.Pattern.MatchString(e.Message) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// validCorrelationID rejects obviously malformed lookups before any scan.
var validCorrelationID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// TraceRequest reconstructs the ordered timeline of one request, annotating
// each event with the elapsed time since the previous one.
func (a *Analysis) TraceRequest(correlationID string) ([]TraceEvent, error) {
	if !validCorrelationID.MatchString(correlationID) {
		return nil, errors.Mark(errors.Newf("malformed correlation id %q", correlationID), ErrValidation)
	}

	matched := a.Filter(Filter{CorrelationID: correlationID})
	if len(matched) == 0 {
		return nil, errors.Mark(errors.Newf("no entries for correlation id %q", correlationID), ErrNotFound)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	timeline := make([]TraceEvent, len(matched))
	for i, e := range matched {
		ev := TraceEvent{Entry: e}
		if i > 0 {
			ev.ElapsedFromPrev = e.Timestamp.Sub(matched[i-1].Timestamp)
		}
		timeline[i] = ev
	}
	return timeline, nil
}

// ErrorSummary groups error-level entries by their recorded error type
// (falling back to the message when none was attached).
func (a *Analysis) ErrorSummary() map[string]int {
	out := make(map[string]int)
	for _, e := range a.Entries {
		if !strings.EqualFold(e.Level, "error") {
			continue
		}
		key := e.Message
		if t, ok := e.Fields["error_type"].(string); ok && t != "" {
			key = t
		} else if t, ok := e.Fields["error"].(string); ok && t != "" {
			key = t
		}
		out[key]++
	}
	return out
}

// SlowOperations returns entries whose recorded duration exceeds the
// threshold, slowest first.
func (a *Analysis) SlowOperations(threshold time.Duration) []SlowOperation {
	var out []SlowOperation
	for _, e := range a.Entries {
		d, ok := entryDuration(e)
		if !ok || d < threshold {
			continue
		}
		out = append(out, SlowOperation{Entry: e, Duration: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration > out[j].Duration })
	return out
}

// entryDuration reads the duration field the JSON encoder writes as
// fractional milliseconds.
func entryDuration(e Entry) (time.Duration, bool) {
	v, ok := e.Fields["duration"]
	if !ok {
		v, ok = e.Fields["duration_ms"]
	}
	if !ok {
		return 0, false
	}
	ms, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}
