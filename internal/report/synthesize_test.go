package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/triage/internal/inventory"
	"github.com/moolen/triage/internal/logparse"
	"github.com/moolen/triage/internal/models"
)

func fixedSynthesizer(inv *inventory.Inventory) *Synthesizer {
	s := New(inv, Config{})
	s.now = func() time.Time { return time.Date(2024, 3, 15, 14, 35, 0, 0, time.UTC) }
	s.newID = func() string { return "report-1" }
	return s
}

func testRetrieval() *models.RetrievalResult {
	mk := func(id string, kind models.SourceKind, score float64, meta map[string]string) models.ScoredFragment {
		return models.ScoredFragment{
			Fragment: &models.KnowledgeFragment{ID: id, Text: "text " + id, SourceKind: kind, SourceID: id, Metadata: meta},
			Score:    score,
		}
	}
	return &models.RetrievalResult{Fragments: []models.ScoredFragment{
		mk("inc-1", models.SourceIncident, 0.92, nil),
		mk("rb-1", models.SourceRunbook, 0.90, map[string]string{"title": "Database Connection Pool"}),
		mk("rb-2", models.SourceRunbook, 0.85, nil),
		mk("con-1", models.SourceContact, 0.80, map[string]string{"system": "user-database"}),
		mk("con-2", models.SourceContact, 0.75, map[string]string{"system": "security-team"}),
		mk("srv-1", models.SourceServer, 0.70, nil),
	}}
}

func testFindings() []models.AgentFinding {
	return []models.AgentFinding{
		{
			Role:                  models.RoleActions,
			Claim:                 map[string]string{"target_system": "user-database", "immediate": "restart pooler; drain slow queries", "short_term": "raise max_connections", "preventive": "add pool alerting", "rollback": "none"},
			SupportingFragmentIDs: []string{"rb-1"},
			Confidence:            0.85,
		},
		{
			Role:                  models.RoleImpact,
			Claim:                 map[string]string{"primary_system": "user-database", "affected_systems": "user-database", "user_impact": "logins failing", "severity": "ERROR"},
			SupportingFragmentIDs: []string{"inc-1", "con-1"},
			Confidence:            0.8,
		},
		{
			Role:                  models.RoleKnowledge,
			Claim:                 map[string]string{"suggested_system": "user-database", "matched_runbook": "rb-1", "similar_incidents": "inc-1"},
			SupportingFragmentIDs: []string{"inc-1", "rb-1"},
			Confidence:            0.75,
		},
		{
			Role:                  models.RoleRootCause,
			Claim:                 map[string]string{"system": "user-database", "trigger": "connection pool exhaustion", "chain": "slow queries -> pool exhausted"},
			SupportingFragmentIDs: []string{"inc-1"},
			Confidence:            0.9,
		},
	}
}

func testConsensus(aggregate float64) *models.ConsensusResult {
	return &models.ConsensusResult{
		Agreement:           map[models.RolePair]float64{},
		AggregateConfidence: aggregate,
	}
}

func testQuery() *models.Query {
	return &models.Query{
		RawText:      "Server_A connection pool exhausted, 200/200 active",
		RedactedText: "Server_A connection pool exhausted, 200/200 active",
		DetectedSystems: []models.SystemRef{
			{CanonicalName: "user-database", MatchedAlias: "Server_A", Confidence: 0.8},
		},
	}
}

func TestSynthesizeMergesCitedEvidence(t *testing.T) {
	s := fixedSynthesizer(nil)
	parsed := logparse.Parse("2024-03-15 14:30:01 ERROR connection pool exhausted 200/200 active")

	report := s.Synthesize(testQuery(), testRetrieval(), testFindings(), testConsensus(0.9), &parsed)

	assert.Equal(t, "report-1", report.ID)
	assert.Equal(t, "ERROR", report.Severity)
	assert.Equal(t, "connection pool exhaustion", report.RootCause)
	assert.Equal(t, "logins failing (affected: user-database)", report.ImpactSummary)
	assert.Equal(t, []string{"restart pooler", "drain slow queries", "raise max_connections", "add pool alerting"}, report.RecommendedActions)

	require.Len(t, report.MatchedIncidents, 1)
	assert.Equal(t, "inc-1", report.MatchedIncidents[0].FragmentID)
	require.NotNil(t, report.MatchedRunbook)
	assert.Equal(t, "rb-1", report.MatchedRunbook.FragmentID)
	assert.Equal(t, "Database Connection Pool", report.MatchedRunbook.Title)
	require.NotNil(t, report.Contact)
	assert.Equal(t, "con-1", report.Contact.FragmentID)
	assert.Equal(t, "connection_pool", report.IssueType)
}

func TestSynthesizeDropsUncitedFromBody(t *testing.T) {
	s := fixedSynthesizer(nil)

	report := s.Synthesize(testQuery(), testRetrieval(), testFindings(), testConsensus(0.9), nil)

	// rb-2, con-2 and srv-1 were retrieved but cited by no agent.
	var audited []string
	for _, ref := range report.UncitedFragments {
		audited = append(audited, ref.FragmentID)
	}
	assert.Equal(t, []string{"rb-2", "con-2", "srv-1"}, audited)
	assert.NotEqual(t, "rb-2", report.MatchedRunbook.FragmentID)
}

func TestSynthesizeLowConfidenceAnnotation(t *testing.T) {
	s := fixedSynthesizer(nil)

	report := s.Synthesize(testQuery(), testRetrieval(), testFindings(), testConsensus(0.2), nil)

	assert.Contains(t, report.Severity, "(low confidence)")
	assert.True(t, len(report.RootCause) > 0)
	assert.Contains(t, report.RootCause, "Unconfirmed: ")
}

func TestSynthesizeSmartConfidence(t *testing.T) {
	s := fixedSynthesizer(nil)

	report := s.Synthesize(testQuery(), testRetrieval(), testFindings(), testConsensus(0.7), nil)

	// runbook +0.10, contact +0.05, one incident +0.01, scaled by the
	// 0.3 headroom: 0.7 + 0.16*0.3.
	assert.InDelta(t, 0.748, report.Confidence, 1e-9)
}

func TestSynthesizeConfidenceCapped(t *testing.T) {
	s := fixedSynthesizer(nil)

	report := s.Synthesize(testQuery(), testRetrieval(), testFindings(), testConsensus(1.0), nil)

	assert.Equal(t, confidenceCeiling, report.Confidence)
}

func TestSynthesizeConfidenceMonotoneInAggregate(t *testing.T) {
	s := fixedSynthesizer(nil)

	// Same evidence bonuses on both sides. A perfect aggregate hits the
	// ceiling; one damped by a degraded agent must land strictly below it.
	full := s.Synthesize(testQuery(), testRetrieval(), testFindings(), testConsensus(1.0), nil)
	damped := s.Synthesize(testQuery(), testRetrieval(), testFindings(), testConsensus(0.85), nil)

	assert.Equal(t, confidenceCeiling, full.Confidence)
	assert.Less(t, damped.Confidence, full.Confidence)
	assert.InDelta(t, 0.874, damped.Confidence, 1e-9)
}

func TestSynthesizeOmitsMissingOptionalFields(t *testing.T) {
	s := fixedSynthesizer(nil)
	retrieval := &models.RetrievalResult{Fragments: []models.ScoredFragment{
		{Fragment: &models.KnowledgeFragment{ID: "inc-1", SourceKind: models.SourceIncident, SourceID: "inc-1"}, Score: 0.9},
	}}

	report := s.Synthesize(testQuery(), retrieval, testFindings(), testConsensus(0.9), nil)

	assert.Nil(t, report.MatchedRunbook)
	assert.Nil(t, report.Contact)
	assert.Empty(t, report.IssueType)
	assert.Empty(t, report.Timeline)
}

func TestSynthesizeDomainOwnerContactRouting(t *testing.T) {
	inv := &inventory.Inventory{
		Systems: []inventory.System{
			{Name: "user-database"},
			{Name: "security-team"},
		},
		DomainOwners: map[string]string{"security": "security-team"},
	}
	require.NoError(t, inv.Validate())
	s := fixedSynthesizer(inv)

	findings := testFindings()
	// The impact agent also cites the security contact, ranked below con-1.
	findings[1].SupportingFragmentIDs = append(findings[1].SupportingFragmentIDs, "con-2")
	parsed := logparse.Result{IssueType: "security", Severity: logparse.SeverityError}

	report := s.Synthesize(testQuery(), testRetrieval(), findings, testConsensus(0.9), &parsed)

	require.NotNil(t, report.Contact)
	assert.Equal(t, "con-2", report.Contact.FragmentID)
}

func TestSynthesizeSingleAgentConfidence(t *testing.T) {
	s := fixedSynthesizer(nil)
	findings := []models.AgentFinding{{
		Role:                  models.RoleGeneralist,
		Claim:                 map[string]string{"summary": "pool exhausted", "root_cause": "slow queries", "impact": "logins failing", "immediate_action": "restart pooler", "severity": "ERROR"},
		SupportingFragmentIDs: []string{"inc-1"},
		Confidence:            1.0,
	}}

	report := s.Synthesize(testQuery(), testRetrieval(), findings, nil, nil)

	assert.Equal(t, "ERROR", report.Severity)
	assert.Equal(t, "slow queries", report.RootCause)
	assert.Equal(t, []string{"restart pooler"}, report.RecommendedActions)
	// generalist 1.0 × detection 0.8, then the 0.01 incident bonus scaled
	// by the remaining 0.2 headroom.
	assert.InDelta(t, 0.802, report.Confidence, 1e-9)
}

func TestSynthesizeRestoresRedactedValues(t *testing.T) {
	s := fixedSynthesizer(nil)
	query := testQuery()
	query.RestoreMap = map[string]string{"[REDACTED_IP_1]": "10.0.0.5"}

	findings := testFindings()
	findings[3].Claim["trigger"] = "connection storm from [REDACTED_IP_1]"
	findings[1].Claim["user_impact"] = "clients behind [REDACTED_IP_1] failing"
	findings[0].Claim["immediate"] = "block [REDACTED_IP_1] at the LB"

	report := s.Synthesize(query, testRetrieval(), findings, testConsensus(0.9), nil)

	assert.Equal(t, "connection storm from 10.0.0.5", report.RootCause)
	assert.Contains(t, report.ImpactSummary, "10.0.0.5")
	require.NotEmpty(t, report.RecommendedActions)
	assert.Equal(t, "block 10.0.0.5 at the LB", report.RecommendedActions[0])
}

func TestSynthesizeDegradedRolesRecorded(t *testing.T) {
	s := fixedSynthesizer(nil)
	consensus := testConsensus(0.6)
	consensus.DegradedRoles = []models.AgentRole{models.RoleKnowledge}

	findings := testFindings()
	findings[2] = models.DegradedFinding(models.RoleKnowledge)

	report := s.Synthesize(testQuery(), testRetrieval(), findings, consensus, nil)

	assert.Equal(t, []models.AgentRole{models.RoleKnowledge}, report.DegradedRoles)
}
