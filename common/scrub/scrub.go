// Package scrub redacts sensitive data from strings and structured values
// before they reach any log sink. A Scrubber is immutable after construction
// and safe for concurrent use without locking.
package scrub

import (
	"fmt"
	"regexp"
	"strings"
)

// Mask is the replacement written over wholesale-redacted values.
const Mask = "****"

// DefaultMaxDepth bounds recursion through nested maps and slices so that
// pathological input always terminates.
const DefaultMaxDepth = 8

// Detector names, usable with WithoutDetectors.
const (
	DetectorDatabaseURL = "database_url"
	DetectorJWT         = "jwt"
	DetectorBearerToken = "bearer_token"
	DetectorQuerySecret = "query_secret"
	DetectorEmail       = "email"
	DetectorSSN         = "ssn"
	DetectorCreditCard  = "credit_card"
	DetectorPhone       = "phone"
)

// ReplaceFunc rewrites a single regex match into its masked form.
type ReplaceFunc func(match string) string

type detector struct {
	name    string
	pattern *regexp.Regexp
	replace ReplaceFunc
}

// Scrubber applies an ordered set of pattern detectors to strings and masks
// values stored under sensitive field names in maps.
type Scrubber struct {
	detectors      []detector
	sensitiveTerms []string
	maxDepth       int
}

// Option configures a Scrubber at construction time.
type Option func(s *Scrubber)

// WithoutDetectors disables the named built-in detectors.
func WithoutDetectors(names ...string) Option {
	return func(s *Scrubber) {
		kept := s.detectors[:0]
		for _, d := range s.detectors {
			disabled := false
			for _, n := range names {
				if d.name == n {
					disabled = true
					break
				}
			}
			if !disabled {
				kept = append(kept, d)
			}
		}
		s.detectors = kept
	}
}

// WithDetector appends a custom detector applied after the built-in set.
func WithDetector(name string, pattern *regexp.Regexp, replace ReplaceFunc) Option {
	return func(s *Scrubber) {
		s.detectors = append(s.detectors, detector{name: name, pattern: pattern, replace: replace})
	}
}

// WithSensitiveTerms replaces the default sensitive field-name terms.
func WithSensitiveTerms(terms ...string) Option {
	return func(s *Scrubber) {
		lowered := make([]string, 0, len(terms))
		for _, t := range terms {
			lowered = append(lowered, strings.ToLower(t))
		}
		s.sensitiveTerms = lowered
	}
}

// WithMaxDepth overrides the recursion bound for nested values.
func WithMaxDepth(depth int) Option {
	return func(s *Scrubber) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// Detector ordering matters: credential-shaped patterns run before the
// generic email/number ones so that e.g. the userinfo part of a database URL
// is not half-eaten by the email detector first.
var (
	reDatabaseURL = regexp.MustCompile(`\b([a-zA-Z][a-zA-Z0-9+.-]*://[^:/\s@]+):([^@\s]+)@`)
	reJWT         = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]*`)
	reBearerToken = regexp.MustCompile(`(?i)\b(bearer|token|api[_-]?key)([:=\s]\s*)[A-Za-z0-9\-._~+/]{8,}=*`)
	reQuerySecret = regexp.MustCompile(`(?i)\b(password|passwd|pwd|token|secret|api_?key|access_?key|auth)=([^&\s"']+)`)
	reEmail       = regexp.MustCompile(`\b([A-Za-z0-9._%+-])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`)
	reSSN         = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	reCreditCard  = regexp.MustCompile(`\b(?:\d{4}[ -]?){3}(\d{4})\b`)
	rePhone       = regexp.MustCompile(`(?:\+?\d{1,3}[ .-]?)?\(?\d{3}\)?[ .-]?\d{3}[ .-]?(\d{4})\b`)
)

func defaultDetectors() []detector {
	return []detector{
		{DetectorDatabaseURL, reDatabaseURL, func(m string) string {
			return reDatabaseURL.ReplaceAllString(m, "$1:"+Mask+"@")
		}},
		{DetectorJWT, reJWT, func(string) string {
			return "eyJ" + Mask + "." + Mask + "." + Mask
		}},
		{DetectorBearerToken, reBearerToken, func(m string) string {
			return reBearerToken.ReplaceAllString(m, "$1$2"+Mask)
		}},
		{DetectorQuerySecret, reQuerySecret, func(m string) string {
			return reQuerySecret.ReplaceAllString(m, "$1="+Mask)
		}},
		{DetectorEmail, reEmail, func(m string) string {
			return reEmail.ReplaceAllString(m, "$1***@$2")
		}},
		{DetectorSSN, reSSN, func(string) string {
			return "***-**-" + Mask
		}},
		{DetectorCreditCard, reCreditCard, func(m string) string {
			return reCreditCard.ReplaceAllString(m, Mask+"-"+Mask+"-"+Mask+"-$1")
		}},
		{DetectorPhone, rePhone, func(m string) string {
			return rePhone.ReplaceAllString(m, "***-***-$1")
		}},
	}
}

func defaultSensitiveTerms() []string {
	return []string{
		"password", "passwd", "pwd",
		"token", "secret", "api_key", "apikey",
		"authorization", "auth", "credential",
		"access_key", "private_key", "session",
		"ssn", "credit_card",
	}
}

// New builds a Scrubber with all built-in detectors enabled.
func New(opts ...Option) *Scrubber {
	s := &Scrubber{
		detectors:      defaultDetectors(),
		sensitiveTerms: defaultSensitiveTerms(),
		maxDepth:       DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrubString runs every active detector over the input in order.
// Content that matches no detector is preserved byte-for-byte.
func (s *Scrubber) ScrubString(in string) string {
	out := in
	for _, d := range s.detectors {
		out = d.pattern.ReplaceAllStringFunc(out, d.replace)
	}
	return out
}

// IsSensitiveKey reports whether a map key names a value that must be masked
// wholesale. The match is a substring test on the lowercased key.
func (s *Scrubber) IsSensitiveKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, term := range s.sensitiveTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// ScrubMap returns a scrubbed copy of the input map. The input is not
// modified.
func (s *Scrubber) ScrubMap(in map[string]any) map[string]any {
	v := s.scrub(in, s.maxDepth)
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return in
}

// ScrubValue scrubs an arbitrarily shaped value: strings are pattern-scanned,
// maps and slices recurse up to the depth bound, and everything else passes
// through unchanged.
func (s *Scrubber) ScrubValue(in any) any {
	return s.scrub(in, s.maxDepth)
}

func (s *Scrubber) scrub(in any, depth int) any {
	if depth <= 0 {
		return Mask
	}

	switch v := in.(type) {
	case string:
		return s.ScrubString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if s.IsSensitiveKey(k) {
				out[k] = Mask
				continue
			}
			out[k] = s.scrub(val, depth-1)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if s.IsSensitiveKey(k) {
				out[k] = Mask
				continue
			}
			out[k] = s.ScrubString(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = s.scrub(val, depth-1)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, val := range v {
			out[i] = s.ScrubString(val)
		}
		return out
	case error:
		if v == nil {
			return v
		}
		return fmt.Errorf("%s", s.ScrubString(v.Error()))
	default:
		return in
	}
}
