// Package report builds the final incident report from the pipeline's
// intermediate artifacts. Synthesis is a deterministic merge: same query,
// retrieval, findings, and consensus always produce the same report body.
package report

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moolen/triage/internal/inventory"
	"github.com/moolen/triage/internal/logging"
	"github.com/moolen/triage/internal/logparse"
	"github.com/moolen/triage/internal/models"
)

const (
	// DefaultLowConfidenceThreshold marks reports whose consensus falls
	// below it as low confidence.
	DefaultLowConfidenceThreshold = 0.5

	// Confidence bumps for corroborating evidence in the final report.
	runbookBonus      = 0.10
	contactBonus      = 0.05
	incidentBonus     = 0.01
	maxIncidentBonus  = 0.05
	confidenceCeiling = 0.98

	// fallbackDetectionFactor scales single-agent confidence when no known
	// system was detected.
	fallbackDetectionFactor = 0.8
)

// Config tunes the synthesizer.
type Config struct {
	// LowConfidenceThreshold is the aggregate confidence below which the
	// report is annotated as low confidence.
	LowConfidenceThreshold float64
}

// Synthesizer merges findings, retrieval provenance, and consensus into an
// IncidentReport.
type Synthesizer struct {
	inventory *inventory.Inventory
	config    Config
	logger    *logging.Logger
	now       func() time.Time
	newID     func() string
}

// New creates a Synthesizer. The inventory may be nil; it is only used for
// issue-type domain-owner contact routing.
func New(inv *inventory.Inventory, cfg Config) *Synthesizer {
	if cfg.LowConfidenceThreshold <= 0 {
		cfg.LowConfidenceThreshold = DefaultLowConfidenceThreshold
	}
	return &Synthesizer{
		inventory: inv,
		config:    cfg,
		logger:    logging.GetLogger("report"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Synthesize builds the final report. The consensus result may be nil in
// single-agent mode; the parsed log may be nil when log parsing was skipped.
// Missing optional fields are omitted, never an error.
func (s *Synthesizer) Synthesize(query *models.Query, retrieval *models.RetrievalResult, findings []models.AgentFinding, consensus *models.ConsensusResult, parsed *logparse.Result) *models.IncidentReport {
	cited := citedIDs(findings)
	citedFrags, uncitedFrags := splitByCitation(retrieval, cited)

	report := &models.IncidentReport{
		ID:               s.newID(),
		DetectedSystems:  query.DetectedSystems,
		GeneratedAt:      s.now(),
		UncitedFragments: uncitedFrags,
	}

	for _, sf := range citedFrags {
		switch sf.Fragment.SourceKind {
		case models.SourceIncident:
			report.MatchedIncidents = append(report.MatchedIncidents, sf.Ref())
		case models.SourceRunbook:
			if report.MatchedRunbook == nil {
				ref := sf.Ref()
				report.MatchedRunbook = &ref
			}
		}
	}
	report.Contact = s.selectContact(citedFrags, parsed)

	report.Severity = s.severity(findings, parsed)
	report.RootCause = restore(rootCause(findings), query.RestoreMap)
	report.ImpactSummary = restore(impactSummary(findings), query.RestoreMap)
	report.RecommendedActions = recommendedActions(findings)
	for i, action := range report.RecommendedActions {
		report.RecommendedActions[i] = restore(action, query.RestoreMap)
	}

	if parsed != nil {
		report.IssueType = parsed.IssueType
		report.Timeline = parsed.Timeline
	}

	aggregate := s.aggregateConfidence(query, findings, consensus)
	if consensus != nil {
		report.DegradedRoles = consensus.DegradedRoles
	}
	if aggregate < s.config.LowConfidenceThreshold {
		report.Severity += " (low confidence)"
		if report.RootCause != "" {
			report.RootCause = "Unconfirmed: " + report.RootCause
		}
	}
	report.Confidence = s.smartConfidence(aggregate, report)

	s.logger.InfoWithFields("report synthesized",
		logging.Field("report_id", report.ID),
		logging.Field("severity", report.Severity),
		logging.Field("confidence", report.Confidence),
		logging.Field("cited_fragments", len(citedFrags)),
		logging.Field("uncited_fragments", len(uncitedFrags)),
	)
	return report
}

// citedIDs is the union of fragment ids any finding cites.
func citedIDs(findings []models.AgentFinding) map[string]bool {
	cited := make(map[string]bool)
	for _, f := range findings {
		for _, id := range f.SupportingFragmentIDs {
			cited[id] = true
		}
	}
	return cited
}

// splitByCitation keeps retrieval order within both partitions. Uncited
// fragments stay out of the report body and go to the audit list.
func splitByCitation(retrieval *models.RetrievalResult, cited map[string]bool) ([]models.ScoredFragment, []models.FragmentRef) {
	var citedFrags []models.ScoredFragment
	var uncited []models.FragmentRef
	for _, sf := range retrieval.Fragments {
		if cited[sf.Fragment.ID] {
			citedFrags = append(citedFrags, sf)
		} else {
			uncited = append(uncited, sf.Ref())
		}
	}
	return citedFrags, uncited
}

// selectContact picks the highest-ranked cited contact fragment. When the
// parsed issue type has a configured domain owner, a cited contact fragment
// belonging to the owning system outranks the generic pick.
func (s *Synthesizer) selectContact(citedFrags []models.ScoredFragment, parsed *logparse.Result) *models.FragmentRef {
	var generic *models.ScoredFragment
	var domain *models.ScoredFragment

	var ownerSystem string
	if s.inventory != nil && parsed != nil {
		if owner := s.inventory.DomainOwner(parsed.IssueType); owner != nil {
			ownerSystem = owner.Name
		}
	}

	for i := range citedFrags {
		sf := &citedFrags[i]
		if sf.Fragment.SourceKind != models.SourceContact {
			continue
		}
		if generic == nil {
			generic = sf
		}
		if domain == nil && ownerSystem != "" && strings.EqualFold(sf.Fragment.System(), ownerSystem) {
			domain = sf
		}
	}

	pick := generic
	if domain != nil {
		pick = domain
	}
	if pick == nil {
		return nil
	}
	ref := pick.Ref()
	return &ref
}

// severity prefers the Impact agent's estimate, then the generalist's, then
// the parsed log severity.
func (s *Synthesizer) severity(findings []models.AgentFinding, parsed *logparse.Result) string {
	if v := claimOf(findings, models.RoleImpact, "severity"); v != "" {
		return strings.ToUpper(v)
	}
	if v := claimOf(findings, models.RoleGeneralist, "severity"); v != "" {
		return strings.ToUpper(v)
	}
	if parsed != nil && parsed.Severity != "" {
		return parsed.Severity
	}
	return logparse.SeverityInfo
}

func rootCause(findings []models.AgentFinding) string {
	for _, key := range []string{"trigger", "chain", "reasoning"} {
		if v := claimOf(findings, models.RoleRootCause, key); v != "" {
			return v
		}
	}
	return claimOf(findings, models.RoleGeneralist, "root_cause")
}

func impactSummary(findings []models.AgentFinding) string {
	if v := claimOf(findings, models.RoleImpact, "user_impact"); v != "" {
		if affected := claimOf(findings, models.RoleImpact, "affected_systems"); affected != "" {
			return v + " (affected: " + affected + ")"
		}
		return v
	}
	return claimOf(findings, models.RoleGeneralist, "impact")
}

// recommendedActions flattens the Actions agent's semicolon-separated plan
// in urgency order: immediate, short term, preventive.
func recommendedActions(findings []models.AgentFinding) []string {
	var actions []string
	for _, key := range []string{"immediate", "short_term", "preventive"} {
		for _, step := range strings.Split(claimOf(findings, models.RoleActions, key), ";") {
			step = strings.TrimSpace(step)
			if step != "" && !strings.EqualFold(step, "none") {
				actions = append(actions, step)
			}
		}
	}
	if len(actions) == 0 {
		if v := claimOf(findings, models.RoleGeneralist, "immediate_action"); v != "" {
			actions = append(actions, v)
		}
	}
	return actions
}

// restore swaps redaction placeholders back to their original values. The
// report is an internal artifact; only outbound prompts must stay redacted.
func restore(s string, restoreMap map[string]string) string {
	if s == "" {
		return s
	}
	for placeholder, original := range restoreMap {
		s = strings.ReplaceAll(s, placeholder, original)
	}
	return s
}

func claimOf(findings []models.AgentFinding, role models.AgentRole, key string) string {
	for _, f := range findings {
		if f.Role == role && !f.Degraded {
			return strings.TrimSpace(f.Claim[key])
		}
	}
	return ""
}

// aggregateConfidence is the consensus aggregate in multi-agent mode. In
// single-agent mode there is nothing to cross-check, so the generalist's
// self-reported confidence is scaled by the best detection confidence.
func (s *Synthesizer) aggregateConfidence(query *models.Query, findings []models.AgentFinding, consensus *models.ConsensusResult) float64 {
	if consensus != nil {
		return consensus.AggregateConfidence
	}

	factor := fallbackDetectionFactor
	for _, sys := range query.DetectedSystems {
		if sys.Confidence > factor {
			factor = sys.Confidence
		}
	}
	for _, f := range findings {
		if f.Role == models.RoleGeneralist && !f.Degraded {
			return f.Confidence * factor
		}
	}
	return 0
}

// smartConfidence bumps the aggregate for corroborating evidence: a matched
// runbook, a matched contact, and related incidents. The bonus is scaled by
// the remaining headroom so the result stays strictly monotone in the
// aggregate below the ceiling; a degraded aggregate can never be bumped
// level with a full one.
func (s *Synthesizer) smartConfidence(aggregate float64, report *models.IncidentReport) float64 {
	bonus := 0.0
	if report.MatchedRunbook != nil {
		bonus += runbookBonus
	}
	if report.Contact != nil {
		bonus += contactBonus
	}
	incidents := incidentBonus * float64(len(report.MatchedIncidents))
	if incidents > maxIncidentBonus {
		incidents = maxIncidentBonus
	}
	bonus += incidents

	confidence := aggregate + bonus*(1-aggregate)
	if confidence > confidenceCeiling {
		confidence = confidenceCeiling
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}
