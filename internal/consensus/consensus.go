// Package consensus computes cross-agent agreement. It is a pure function
// of the findings: no external calls, no clock, no randomness, so equal
// findings in any order produce an identical result.
package consensus

import (
	"sort"
	"strings"

	"github.com/moolen/triage/internal/models"
)

// Defaults for the tunable knobs. The exact values are configuration, not
// contract.
const (
	DefaultContradictionThreshold = 0.3
	DefaultDampingFactor          = 0.85
)

// Config tunes the consensus arithmetic.
type Config struct {
	// ContradictionThreshold marks a pair as contradictory when its
	// agreement falls below it.
	ContradictionThreshold float64
	// DampingFactor multiplies the aggregate once per degraded role.
	DampingFactor float64
}

// Engine scores agreement between agent findings.
type Engine struct {
	config Config
}

// New creates an Engine, applying defaults for unset knobs.
func New(cfg Config) *Engine {
	if cfg.ContradictionThreshold <= 0 {
		cfg.ContradictionThreshold = DefaultContradictionThreshold
	}
	if cfg.DampingFactor <= 0 || cfg.DampingFactor >= 1 {
		cfg.DampingFactor = DefaultDampingFactor
	}
	return &Engine{config: cfg}
}

// Consensus computes pairwise agreement over the non-degraded findings and
// the damped aggregate confidence.
func (e *Engine) Consensus(findings []models.AgentFinding) models.ConsensusResult {
	sorted := make([]models.AgentFinding, len(findings))
	copy(sorted, findings)
	models.SortFindings(sorted)

	var active []models.AgentFinding
	var degradedRoles []models.AgentRole
	for _, f := range sorted {
		if f.Degraded {
			degradedRoles = append(degradedRoles, f.Role)
			continue
		}
		active = append(active, f)
	}

	result := models.ConsensusResult{
		Agreement:     make(map[models.RolePair]float64),
		DegradedRoles: degradedRoles,
	}

	var sum float64
	var pairs int
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			pair := models.NewRolePair(active[i].Role, active[j].Role)
			score := agreement(active[i], active[j])
			result.Agreement[pair] = score
			sum += score
			pairs++
			if score < e.config.ContradictionThreshold {
				result.Contradictions = append(result.Contradictions, pair)
			}
		}
	}

	sort.Slice(result.Contradictions, func(i, j int) bool {
		a, b := result.Contradictions[i], result.Contradictions[j]
		if a.A != b.A {
			return a.A < b.A
		}
		return a.B < b.B
	})

	if pairs > 0 {
		result.AggregateConfidence = sum / float64(pairs)
	}
	for range degradedRoles {
		result.AggregateConfidence *= e.config.DampingFactor
	}
	if result.AggregateConfidence < 0 {
		result.AggregateConfidence = 0
	}
	return result
}

// agreement scores one pair: 0 on a claim conflict, 1 when the citation
// sets are equal or nested with consistent claims, the Jaccard similarity
// of the citation sets otherwise.
func agreement(a, b models.AgentFinding) float64 {
	if claimsConflict(a, b) {
		return 0
	}
	setA := toSet(a.SupportingFragmentIDs)
	setB := toSet(b.SupportingFragmentIDs)
	if isSubset(setA, setB) || isSubset(setB, setA) {
		return 1.0
	}
	return jaccard(setA, setB)
}

// systemClaimKeys are the per-role claim fields that name the implicated
// system, in lookup order.
var systemClaimKeys = []string{"system", "primary_system", "suggested_system", "target_system"}

// severityRanks orders severity levels so "more than one rank apart" is
// well defined.
var severityRanks = map[string]int{
	"CRITICAL": 3,
	"ERROR":    2,
	"WARNING":  1,
	"INFO":     0,
}

// claimsConflict reports mutual exclusion: the two findings name different
// systems, or severity levels more than one rank apart.
func claimsConflict(a, b models.AgentFinding) bool {
	sysA, sysB := claimedSystem(a), claimedSystem(b)
	if sysA != "" && sysB != "" && !strings.EqualFold(sysA, sysB) {
		return true
	}

	sevA, okA := claimedSeverity(a)
	sevB, okB := claimedSeverity(b)
	if okA && okB {
		diff := sevA - sevB
		if diff < 0 {
			diff = -diff
		}
		if diff > 1 {
			return true
		}
	}
	return false
}

func claimedSystem(f models.AgentFinding) string {
	for _, key := range systemClaimKeys {
		if v := strings.TrimSpace(f.Claim[key]); v != "" && !strings.EqualFold(v, "none") {
			return v
		}
	}
	return ""
}

func claimedSeverity(f models.AgentFinding) (int, bool) {
	v := strings.ToUpper(strings.TrimSpace(f.Claim["severity"]))
	rank, ok := severityRanks[v]
	return rank, ok
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// isSubset reports whether a ⊆ b. The empty set is a subset of anything.
func isSubset(a, b map[string]bool) bool {
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

func jaccard(a, b map[string]bool) float64 {
	var intersection int
	for id := range a {
		if b[id] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}
