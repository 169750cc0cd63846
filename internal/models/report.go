package models

import "time"

// TimelineEvent is one timestamped event extracted from the incident log.
type TimelineEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// IncidentReport is the final artifact of one pipeline invocation. Built once
// by the synthesizer and never mutated afterwards.
type IncidentReport struct {
	ID                 string          `json:"id"`
	Severity           string          `json:"severity"`
	IssueType          string          `json:"issue_type,omitempty"`
	RootCause          string          `json:"root_cause"`
	ImpactSummary      string          `json:"impact_summary"`
	RecommendedActions []string        `json:"recommended_actions"`
	MatchedIncidents   []FragmentRef   `json:"matched_incidents"`
	MatchedRunbook     *FragmentRef    `json:"matched_runbook,omitempty"`
	Contact            *FragmentRef    `json:"contact,omitempty"`
	Confidence         float64         `json:"confidence"`
	DetectedSystems    []SystemRef     `json:"detected_systems"`
	DegradedRoles      []AgentRole     `json:"degraded_roles,omitempty"`
	Timeline           []TimelineEvent `json:"timeline,omitempty"`
	GeneratedAt        time.Time       `json:"generated_at"`

	// UncitedFragments are fragments that were retrieved but cited by no
	// agent. They are excluded from the report body and kept here for
	// audit only.
	UncitedFragments []FragmentRef `json:"-"`
}
