package models

import "time"

// SystemRef is one detected system reference in the input text. No two
// SystemRefs in a query share the same CanonicalName; detection keeps the
// highest-confidence alias match per system.
type SystemRef struct {
	CanonicalName string  `json:"canonical_name"`
	MatchedAlias  string  `json:"matched_alias"`
	MatchStart    int     `json:"match_start"`
	MatchEnd      int     `json:"match_end"`
	Confidence    float64 `json:"confidence"`
}

// Query is the per-invocation analysis request. It is owned by a single
// pipeline invocation and discarded after the report is produced.
type Query struct {
	RawText      string
	RedactedText string
	// RestoreMap maps redaction placeholders back to their original values.
	// Outbound prompts stay redacted; report synthesis restores the
	// originals into internal report fields.
	RestoreMap      map[string]string
	DetectedSystems []SystemRef
	Timestamp       time.Time
}

// SystemNames returns the canonical names of all detected systems in
// detection order.
func (q *Query) SystemNames() []string {
	names := make([]string, 0, len(q.DetectedSystems))
	for _, s := range q.DetectedSystems {
		names = append(names, s.CanonicalName)
	}
	return names
}
