package models

import "sort"

// AgentRole identifies the analytical lens of a reasoning agent. Roles form
// a closed set; new roles are added here, not by ad hoc string dispatch.
type AgentRole string

const (
	RoleRootCause  AgentRole = "root_cause"
	RoleImpact     AgentRole = "impact"
	RoleActions    AgentRole = "actions"
	RoleKnowledge  AgentRole = "knowledge"
	RoleGeneralist AgentRole = "generalist"
)

// SpecialistRoles returns the four roles run in multi-agent mode, in stable
// name order.
func SpecialistRoles() []AgentRole {
	return []AgentRole{RoleActions, RoleImpact, RoleKnowledge, RoleRootCause}
}

// AgentFinding is the structured partial result of one agent over one query.
// Immutable once produced.
type AgentFinding struct {
	Role AgentRole
	// Claim is the role-specific structured output, e.g. the root cause
	// agent fills "system", "trigger", "causal_chain".
	Claim map[string]string
	// SupportingFragmentIDs are the fragment ids the agent cited as
	// evidence, sorted ascending.
	SupportingFragmentIDs []string
	Confidence            float64
	// Degraded marks a finding produced under timeout or backend failure.
	// A degraded finding carries zero confidence and no usable claim.
	Degraded bool
}

// DegradedFinding builds the placeholder finding for a role whose agent call
// failed after retry.
func DegradedFinding(role AgentRole) AgentFinding {
	return AgentFinding{
		Role:       role,
		Claim:      map[string]string{"status": "insufficient evidence"},
		Confidence: 0,
		Degraded:   true,
	}
}

// SortFindings orders findings by role name so downstream computation never
// depends on agent completion order.
func SortFindings(findings []AgentFinding) {
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Role < findings[j].Role
	})
}

// RolePair is an unordered pair of roles, stored with A < B.
type RolePair struct {
	A, B AgentRole
}

// NewRolePair normalizes the pair so that A < B.
func NewRolePair(a, b AgentRole) RolePair {
	if b < a {
		a, b = b, a
	}
	return RolePair{A: a, B: b}
}

// ConsensusResult captures cross-agent agreement for one query. It is derived
// purely from the findings; equal findings yield an equal result regardless
// of input order.
type ConsensusResult struct {
	// Agreement holds the pairwise agreement score for every evaluated
	// pair of non-degraded findings.
	Agreement map[RolePair]float64
	// Contradictions lists the pairs whose agreement fell below the
	// configured threshold, sorted by role names.
	Contradictions []RolePair
	// AggregateConfidence is the mean pairwise agreement, damped once per
	// degraded role. In [0,1].
	AggregateConfidence float64
	// DegradedRoles lists roles whose agents failed, sorted by name.
	DegradedRoles []AgentRole
}
