// Package logparse extracts structure from raw incident logs: severity,
// issue type, error codes, and a timestamped event timeline. The extraction
// is heuristic; downstream components treat its output as hints, not truth.
package logparse

import (
	"regexp"
	"sort"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"

	"github.com/moolen/triage/internal/models"
)

// Severity levels in decreasing precedence.
const (
	SeverityCritical = "CRITICAL"
	SeverityError    = "ERROR"
	SeverityWarning  = "WARNING"
	SeverityInfo     = "INFO"
)

var severityPatterns = []struct {
	level string
	re    *regexp.Regexp
}{
	{SeverityCritical, regexp.MustCompile(`(?i)\b(critical|fatal|panic|outage|crashed|crash|emergency)\b`)},
	{SeverityError, regexp.MustCompile(`(?i)\b(error|err|failed|failure|exception|refused|exhausted|denied)\b`)},
	{SeverityWarning, regexp.MustCompile(`(?i)\b(warn|warning|degraded|slow|elevated|retrying)\b`)},
}

// issueTypePatterns classify the log into one dominant issue type. Order is
// the tie-break priority when two types match equally often.
var issueTypePatterns = []struct {
	issueType string
	re        *regexp.Regexp
}{
	{"connection_pool", regexp.MustCompile(`(?i)connection pool|pool exhausted|max[_ ]connections|too many (clients|connections)|\d+/\d+ active`)},
	{"memory_leak", regexp.MustCompile(`(?i)memory leak|out of memory|\boom\b|oom[- ]?kill|heap (size|usage|space)`)},
	{"disk_space", regexp.MustCompile(`(?i)disk (space|full|usage)|no space left|volume full|filesystem full`)},
	{"replication_lag", regexp.MustCompile(`(?i)replication (lag|delay|broken)|replica (behind|lag)|wal sender`)},
	{"timeout", regexp.MustCompile(`(?i)timed? ?out|deadline exceeded|context canceled`)},
	{"security", regexp.MustCompile(`(?i)unauthorized|forbidden|authentication fail|invalid (credentials|token)|brute[- ]force|intrusion`)},
	{"network", regexp.MustCompile(`(?i)connection (refused|reset)|unreachable|dns (error|failure)|packet loss|no route to host`)},
}

var (
	errorCodeRe   = regexp.MustCompile(`\b[A-Z]{2,6}[-_]\d{2,5}\b`)
	statusCodeRe  = regexp.MustCompile(`(?i)\b(?:status|code|error)[ :=]+(\d{3,5})\b`)
	errorLineRe   = regexp.MustCompile(`(?i)\b(error|critical|fatal|panic|fail|exception)\b`)
	bracketLineRe = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)
	leadingTsRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2})?(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\s+(.*)$`)
)

// Result holds everything extracted from one log snippet.
type Result struct {
	Severity      string
	IssueType     string
	ErrorCodes    []string
	IncidentStart *time.Time
	Timeline      []models.TimelineEvent
}

// Parse extracts severity, issue type, error codes, and the event timeline
// from a raw log snippet.
func Parse(text string) Result {
	res := Result{
		Severity:   extractSeverity(text),
		IssueType:  extractIssueType(text),
		ErrorCodes: extractErrorCodes(text),
		Timeline:   extractTimeline(text),
	}
	if len(res.Timeline) > 0 {
		start := res.Timeline[0].Timestamp
		res.IncidentStart = &start
	}
	return res
}

// extractSeverity returns the highest matching severity tier, INFO when
// nothing matches.
func extractSeverity(text string) string {
	for _, p := range severityPatterns {
		if p.re.MatchString(text) {
			return p.level
		}
	}
	return SeverityInfo
}

// extractIssueType picks the dominant issue type by match count, breaking
// ties by pattern priority. Returns "" when nothing matches.
func extractIssueType(text string) string {
	best := ""
	bestCount := 0
	for _, p := range issueTypePatterns {
		count := len(p.re.FindAllStringIndex(text, -1))
		if count > bestCount {
			best = p.issueType
			bestCount = count
		}
	}
	return best
}

func extractErrorCodes(text string) []string {
	seen := make(map[string]bool)
	var codes []string
	add := func(code string) {
		if code == "" || seen[code] {
			return
		}
		seen[code] = true
		codes = append(codes, code)
	}
	for _, m := range errorCodeRe.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range statusCodeRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	sort.Strings(codes)
	return codes
}

// extractTimeline pulls timestamped events out of the log, one per line that
// starts with a bracketed or bare timestamp. Events are sorted by time.
func extractTimeline(text string) []models.TimelineEvent {
	var events []models.TimelineEvent
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var candidate, message string
		if m := bracketLineRe.FindStringSubmatch(line); m != nil {
			candidate, message = m[1], m[2]
		} else if m := leadingTsRe.FindStringSubmatch(line); m != nil {
			candidate, message = m[1], m[2]
		} else {
			continue
		}

		ts, ok := parseTimestamp(candidate)
		if !ok {
			continue
		}
		events = append(events, models.TimelineEvent{Timestamp: ts, Message: message})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

func parseTimestamp(s string) (time.Time, bool) {
	parser := dps.Parser{}
	cfg := &dps.Configuration{
		PreferredDateSource: dps.CurrentPeriod,
	}
	parsed, err := parser.Parse(cfg, s)
	if err != nil || parsed.IsZero() {
		return time.Time{}, false
	}
	return parsed.Time, true
}

// FocusQuery builds the retrieval query from the highest-signal lines of the
// log. ERROR and CRITICAL lines carry the incident's identity; when none
// exist the first maxLines lines are used instead.
func FocusQuery(text string, maxLines int) string {
	if maxLines <= 0 {
		maxLines = 5
	}
	lines := strings.Split(text, "\n")

	var focus []string
	for _, line := range lines {
		if errorLineRe.MatchString(line) {
			focus = append(focus, strings.TrimSpace(line))
			if len(focus) >= maxLines {
				break
			}
		}
	}
	if len(focus) > 0 {
		return strings.Join(focus, "\n")
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
