package multiagent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/triage/internal/agent/provider"
	"github.com/moolen/triage/internal/models"
)

func testRetrieval() *models.RetrievalResult {
	mk := func(id string, kind models.SourceKind) models.ScoredFragment {
		return models.ScoredFragment{
			Fragment: &models.KnowledgeFragment{ID: id, Text: "text " + id, SourceKind: kind, SourceID: id},
			Score:    0.8,
		}
	}
	return &models.RetrievalResult{Fragments: []models.ScoredFragment{
		mk("inc-1", models.SourceIncident),
		mk("rb-1", models.SourceRunbook),
	}}
}

func testQuery() *models.Query {
	return &models.Query{
		RawText:      "Server_A connection pool exhausted",
		RedactedText: "Server_A connection pool exhausted",
		DetectedSystems: []models.SystemRef{
			{CanonicalName: "user-database", MatchedAlias: "Server_A", Confidence: 0.8},
		},
		Timestamp: time.Now(),
	}
}

func scriptedProvider() *provider.MockProvider {
	p := provider.NewMockProvider()
	p.Respond("Root Cause Agent", "SYSTEM: user-database\nTRIGGER: pool exhaustion\nCHAIN: slow queries -> pool exhausted\nREASONING: matches inc-1\nCITES: inc-1, rb-1\nCONFIDENCE: 0.9")
	p.Respond("Impact Agent", "PRIMARY_SYSTEM: user-database\nAFFECTED_SYSTEMS: user-database\nUSER_IMPACT: logins failing\nDURATION: 30m\nSEVERITY: ERROR\nCITES: inc-1\nCONFIDENCE: 0.8")
	p.Respond("Actions Agent", "TARGET_SYSTEM: user-database\nIMMEDIATE: restart pooler\nSHORT_TERM: raise max_connections\nPREVENTIVE: add pool alerting\nROLLBACK: none\nCITES: rb-1\nCONFIDENCE: 0.85")
	p.Respond("Knowledge Agent", "SUGGESTED_SYSTEM: user-database\nMATCHED_RUNBOOK: rb-1\nSIMILAR_INCIDENTS: inc-1\nREASONING: same failure mode\nCITES: inc-1, rb-1\nCONFIDENCE: 0.75")
	p.Respond("incident analysis agent", "SUMMARY: pool exhausted\nROOT_CAUSE: slow queries\nIMPACT: logins failing\nIMMEDIATE_ACTION: restart pooler\nSEVERITY: ERROR\nCITES: inc-1\nCONFIDENCE: 0.7")
	return p
}

func TestParseFinding(t *testing.T) {
	spec := roleSpecs[models.RoleRootCause]
	output := "SYSTEM: user-database\n" +
		"TRIGGER: pool exhaustion\n" +
		"CHAIN: slow queries -> pool exhausted\n" +
		"  spilling into replica lag\n" + // continuation line
		"CITES: inc-1, bogus-id, rb-1\n" +
		"CONFIDENCE: 0.9"

	finding, err := parseFinding(spec, output, testRetrieval())
	require.NoError(t, err)

	assert.Equal(t, models.RoleRootCause, finding.Role)
	assert.Equal(t, "user-database", finding.Claim["system"])
	assert.Contains(t, finding.Claim["chain"], "spilling into replica lag")
	// Invented ids are dropped; kept ids are sorted.
	assert.Equal(t, []string{"inc-1", "rb-1"}, finding.SupportingFragmentIDs)
	assert.InDelta(t, 0.9, finding.Confidence, 1e-9)
}

func TestParseFindingConfidenceVariants(t *testing.T) {
	assert.InDelta(t, 0.85, parseConfidence("85%"), 1e-9)
	assert.InDelta(t, 0.85, parseConfidence("85"), 1e-9)
	assert.InDelta(t, 1.0, parseConfidence("1.0"), 1e-9)
	assert.Equal(t, 0.0, parseConfidence("high"))
	assert.Equal(t, 0.0, parseConfidence("-3"))
}

func TestParseFindingRejectsUnusableOutput(t *testing.T) {
	spec := roleSpecs[models.RoleRootCause]
	_, err := parseFinding(spec, "I could not analyze this incident.", testRetrieval())
	assert.Error(t, err)

	_, err = parseFinding(spec, "CONFIDENCE: 0.5", testRetrieval())
	assert.Error(t, err)
}

func TestAnalyzeMultiAgent(t *testing.T) {
	o := New(scriptedProvider(), Config{})

	findings, err := o.Analyze(context.Background(), testQuery(), testRetrieval(), true)
	require.NoError(t, err)
	require.Len(t, findings, 4)

	// Sorted by role name, never by completion order.
	wantRoles := []models.AgentRole{models.RoleActions, models.RoleImpact, models.RoleKnowledge, models.RoleRootCause}
	for i, f := range findings {
		assert.Equal(t, wantRoles[i], f.Role)
		assert.False(t, f.Degraded)
	}
}

func TestAnalyzeDegradesSingleFailure(t *testing.T) {
	p := scriptedProvider()
	p.Fail("Knowledge Agent", errors.New("backend 500"))
	o := New(p, Config{})

	findings, err := o.Analyze(context.Background(), testQuery(), testRetrieval(), true)
	require.NoError(t, err)
	require.Len(t, findings, 4)

	var degraded []models.AgentRole
	for _, f := range findings {
		if f.Degraded {
			degraded = append(degraded, f.Role)
			assert.Equal(t, 0.0, f.Confidence)
			assert.Equal(t, "insufficient evidence", f.Claim["status"])
		}
	}
	assert.Equal(t, []models.AgentRole{models.RoleKnowledge}, degraded)
}

func TestAnalyzeFailsBelowQuorum(t *testing.T) {
	p := scriptedProvider()
	p.Fail("Knowledge Agent", errors.New("backend down"))
	p.Fail("Impact Agent", errors.New("backend down"))
	p.Fail("Actions Agent", errors.New("backend down"))
	o := New(p, Config{})

	_, err := o.Analyze(context.Background(), testQuery(), testRetrieval(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAnalysisUnavailable)
}

func TestAnalyzeSingleAgentMode(t *testing.T) {
	p := scriptedProvider()
	o := New(p, Config{})

	findings, err := o.Analyze(context.Background(), testQuery(), testRetrieval(), false)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.RoleGeneralist, findings[0].Role)
	assert.Equal(t, "pool exhausted", findings[0].Claim["summary"])

	// Only one backend call was made.
	assert.Len(t, p.Calls(), 1)
}

func TestAnalyzeRetriesOnce(t *testing.T) {
	p := provider.NewMockProvider()
	p.Fail("incident analysis agent", errors.New("throttled"))
	o := New(p, Config{})

	_, err := o.Analyze(context.Background(), testQuery(), testRetrieval(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAnalysisUnavailable)
	// Initial attempt plus exactly one retry.
	assert.Len(t, p.Calls(), 2)
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := New(scriptedProvider(), Config{})

	_, err := o.Analyze(ctx, testQuery(), testRetrieval(), true)
	require.Error(t, err)
}
