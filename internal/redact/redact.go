// Package redact masks sensitive substrings in incident text before it is
// sent to any external reasoning backend. Replacements are deterministic
// indexed placeholders, recorded in an audit trail, and reversible within
// the process via the restore map.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/moolen/triage/internal/logging"
)

var logger = logging.GetLogger("redact")

// Replacement records one masking operation. Position is the byte offset of
// the original value in the pre-replacement text.
type Replacement struct {
	PatternType string
	Original    string
	Placeholder string
	Position    int
}

// Result is the outcome of one Redact call.
type Result struct {
	RedactedText string
	// RestoreMap maps placeholder to original value so the pipeline can
	// re-insert safe values into internal report fields.
	RestoreMap map[string]string
	Audit      []Replacement
}

type pattern struct {
	name string
	re   *regexp.Regexp
	// guard may reject a candidate match based on its context. nil means
	// always accept.
	guard func(text string, start, end int) bool
}

var builtinPatterns = []pattern{
	{name: "SSN", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{name: "CARD", re: regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
	{name: "EMAIL", re: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{name: "IP", re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), guard: notVersionNumber},
	{name: "IP", re: regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`), guard: looksLikeIPv6},
	{name: "CRED", re: regexp.MustCompile(`(?i)\b(?:password|passwd|secret|api[_-]?key|access[_-]?key|auth[_-]?token)\s*[=:]\s*\S+`)},
	{name: "TOKEN", re: regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)},
	{name: "TOKEN", re: regexp.MustCompile(`\b[A-Za-z0-9_\-]{32,}\b`), guard: highEntropy},
	{name: "PHONE", re: regexp.MustCompile(`\b\d{3}[-.]\d{3}[-.]\d{4}(?:\s*(?:x|ext\.?)\s*\d+)?\b`)},
}

// notVersionNumber rejects dotted quads that appear in a software-version
// context, e.g. "v2.14.0.1" or "version 1.2.3.4".
func notVersionNumber(text string, start, end int) bool {
	prefix := text[:start]
	if strings.HasSuffix(prefix, "v") || strings.HasSuffix(prefix, "V") {
		return false
	}
	trimmed := strings.ToLower(strings.TrimRight(prefix, " :"))
	if strings.HasSuffix(trimmed, "version") || strings.HasSuffix(trimmed, "release") {
		return false
	}
	// Octets above 255 are not addresses.
	for _, part := range strings.Split(text[start:end], ".") {
		if len(part) == 3 && part > "255" {
			return false
		}
	}
	return true
}

// looksLikeIPv6 rejects colon-separated hex that is really a timestamp or a
// MAC-style sequence of single-character groups.
func looksLikeIPv6(text string, start, end int) bool {
	groups := strings.Split(text[start:end], ":")
	if len(groups) < 3 {
		return false
	}
	hasHexLetter := false
	for _, g := range groups {
		if strings.ContainsAny(g, "abcdefABCDEF") {
			hasHexLetter = true
		}
	}
	return hasHexLetter
}

// highEntropy accepts long unstructured strings only when they mix letters
// and digits, filtering out identifiers and our own placeholders.
func highEntropy(text string, start, end int) bool {
	s := text[start:end]
	if strings.Contains(s, "REDACTED_") {
		return false
	}
	var letters, digits int
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letters++
		}
	}
	return letters >= 4 && digits >= 4
}

// Redactor masks sensitive substrings. Safe for concurrent use.
type Redactor struct {
	enabled    bool
	patterns   []pattern
	knownNames []string
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithKnownNames adds personal names (typically contacts from the knowledge
// inventory) to be masked. Names are matched case-insensitively, longest
// first so "Sarah Chen" wins over "Sarah".
func WithKnownNames(names []string) Option {
	return func(r *Redactor) {
		r.knownNames = append(r.knownNames, names...)
	}
}

// Disabled returns a Redactor whose Redact is a pass-through. Used when
// sanitization is switched off or when the reasoning backend is local and
// text never leaves the machine.
func Disabled() *Redactor {
	return &Redactor{enabled: false}
}

// New creates a Redactor with the built-in pattern set.
func New(opts ...Option) *Redactor {
	r := &Redactor{enabled: true, patterns: builtinPatterns}
	for _, opt := range opts {
		opt(r)
	}
	sort.Slice(r.knownNames, func(i, j int) bool {
		return len(r.knownNames[i]) > len(r.knownNames[j])
	})
	return r
}

// Enabled reports whether this redactor masks anything.
func (r *Redactor) Enabled() bool {
	return r.enabled
}

type match struct {
	start, end  int
	patternType string
}

// Redact masks all sensitive substrings in text. Masking is deterministic
// and idempotent: placeholders never match any pattern, so re-redacting
// already-redacted text is a no-op. Absence of matches is not an error.
func (r *Redactor) Redact(text string) Result {
	if !r.enabled {
		return Result{RedactedText: text, RestoreMap: map[string]string{}}
	}

	matches := r.collectMatches(text)

	result := Result{RestoreMap: make(map[string]string)}
	counters := make(map[string]int)
	// Same original value of the same type always maps to the same
	// placeholder within one call.
	assigned := make(map[string]string)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		original := text[m.start:m.end]
		key := m.patternType + "\x00" + original
		placeholder, ok := assigned[key]
		if !ok {
			counters[m.patternType]++
			placeholder = fmt.Sprintf("[REDACTED_%s_%d]", m.patternType, counters[m.patternType])
			assigned[key] = placeholder
			result.RestoreMap[placeholder] = original
		}
		b.WriteString(text[last:m.start])
		b.WriteString(placeholder)
		last = m.end
		result.Audit = append(result.Audit, Replacement{
			PatternType: m.patternType,
			Original:    original,
			Placeholder: placeholder,
			Position:    m.start,
		})
	}
	b.WriteString(text[last:])
	result.RedactedText = b.String()

	if len(result.Audit) > 0 {
		logger.DebugWithFields("redacted sensitive values",
			logging.Field("replacements", len(result.Audit)),
		)
	}
	return result
}

// collectMatches gathers candidate spans from all patterns and known names,
// then resolves overlaps preferring the earliest start, and on equal start
// the longest span.
func (r *Redactor) collectMatches(text string) []match {
	var candidates []match
	for _, p := range r.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if p.guard != nil && !p.guard(text, loc[0], loc[1]) {
				continue
			}
			candidates = append(candidates, match{start: loc[0], end: loc[1], patternType: p.name})
		}
	}

	lower := strings.ToLower(text)
	for _, name := range r.knownNames {
		needle := strings.ToLower(name)
		if needle == "" {
			continue
		}
		for idx := 0; ; {
			pos := strings.Index(lower[idx:], needle)
			if pos < 0 {
				break
			}
			start := idx + pos
			candidates = append(candidates, match{start: start, end: start + len(needle), patternType: "NAME"})
			idx = start + len(needle)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].end > candidates[j].end
	})

	var resolved []match
	lastEnd := -1
	for _, c := range candidates {
		if c.start < lastEnd {
			continue
		}
		resolved = append(resolved, c)
		lastEnd = c.end
	}
	return resolved
}
