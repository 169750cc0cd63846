package consensus

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/triage/internal/models"
)

func finding(role models.AgentRole, system string, cites ...string) models.AgentFinding {
	return models.AgentFinding{
		Role:                  role,
		Claim:                 map[string]string{"system": system},
		SupportingFragmentIDs: cites,
		Confidence:            0.8,
	}
}

func fourAgreeing() []models.AgentFinding {
	return []models.AgentFinding{
		finding(models.RoleRootCause, "user-database", "inc-1", "rb-1"),
		finding(models.RoleImpact, "user-database", "inc-1", "rb-1"),
		finding(models.RoleActions, "user-database", "inc-1", "rb-1"),
		finding(models.RoleKnowledge, "user-database", "inc-1", "rb-1"),
	}
}

func TestConsensusFullAgreement(t *testing.T) {
	e := New(Config{})
	res := e.Consensus(fourAgreeing())

	assert.Len(t, res.Agreement, 6)
	for pair, score := range res.Agreement {
		assert.Equal(t, 1.0, score, "pair %v", pair)
	}
	assert.Empty(t, res.Contradictions)
	assert.Equal(t, 1.0, res.AggregateConfidence)
}

func TestConsensusSubsetCitations(t *testing.T) {
	e := New(Config{})
	findings := []models.AgentFinding{
		finding(models.RoleRootCause, "user-database", "inc-1", "rb-1"),
		finding(models.RoleImpact, "user-database", "inc-1"),
	}
	res := e.Consensus(findings)

	pair := models.NewRolePair(models.RoleRootCause, models.RoleImpact)
	assert.Equal(t, 1.0, res.Agreement[pair])
}

func TestConsensusPartialOverlap(t *testing.T) {
	e := New(Config{})
	findings := []models.AgentFinding{
		finding(models.RoleRootCause, "user-database", "inc-1", "rb-1"),
		finding(models.RoleImpact, "user-database", "inc-1", "srv-1"),
	}
	res := e.Consensus(findings)

	// Jaccard: |{inc-1}| / |{inc-1, rb-1, srv-1}|
	pair := models.NewRolePair(models.RoleRootCause, models.RoleImpact)
	assert.InDelta(t, 1.0/3.0, res.Agreement[pair], 1e-9)
	assert.Empty(t, res.Contradictions)
}

func TestConsensusSystemConflictIsZero(t *testing.T) {
	e := New(Config{})
	findings := []models.AgentFinding{
		finding(models.RoleRootCause, "user-database", "inc-1"),
		finding(models.RoleImpact, "payment-gateway", "inc-1"),
	}
	res := e.Consensus(findings)

	pair := models.NewRolePair(models.RoleRootCause, models.RoleImpact)
	assert.Equal(t, 0.0, res.Agreement[pair])
	assert.Equal(t, []models.RolePair{pair}, res.Contradictions)
}

func TestConsensusSeverityGapIsZero(t *testing.T) {
	e := New(Config{})
	a := finding(models.RoleImpact, "user-database", "inc-1")
	a.Claim["severity"] = "CRITICAL"
	b := finding(models.RoleGeneralist, "user-database", "inc-1")
	b.Claim["severity"] = "WARNING"
	res := e.Consensus([]models.AgentFinding{a, b})

	pair := models.NewRolePair(models.RoleImpact, models.RoleGeneralist)
	assert.Equal(t, 0.0, res.Agreement[pair])
	assert.NotEmpty(t, res.Contradictions)
}

func TestConsensusAdjacentSeverityIsNotConflict(t *testing.T) {
	e := New(Config{})
	a := finding(models.RoleImpact, "user-database", "inc-1")
	a.Claim["severity"] = "CRITICAL"
	b := finding(models.RoleGeneralist, "user-database", "inc-1")
	b.Claim["severity"] = "ERROR"
	res := e.Consensus([]models.AgentFinding{a, b})

	pair := models.NewRolePair(models.RoleImpact, models.RoleGeneralist)
	assert.Equal(t, 1.0, res.Agreement[pair])
}

func TestConsensusDegradedDampsAggregate(t *testing.T) {
	e := New(Config{})
	findings := fourAgreeing()
	findings[3] = models.DegradedFinding(models.RoleKnowledge)
	res := e.Consensus(findings)

	// Three active findings agree fully, damped once.
	assert.Len(t, res.Agreement, 3)
	assert.InDelta(t, 0.85, res.AggregateConfidence, 1e-9)
	assert.Equal(t, []models.AgentRole{models.RoleKnowledge}, res.DegradedRoles)
}

func TestConsensusOrderIndependent(t *testing.T) {
	e := New(Config{})
	findings := []models.AgentFinding{
		finding(models.RoleRootCause, "user-database", "inc-1", "rb-1"),
		finding(models.RoleImpact, "user-database", "inc-1", "srv-1"),
		finding(models.RoleActions, "user-database", "rb-1"),
		models.DegradedFinding(models.RoleKnowledge),
	}
	want := e.Consensus(findings)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]models.AgentFinding, len(findings))
		copy(shuffled, findings)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := e.Consensus(shuffled)
		assert.Equal(t, want, got)
	}
}

func TestConsensusConfidenceDropsWhenCitationsDiverge(t *testing.T) {
	e := New(Config{})
	agreeing := e.Consensus(fourAgreeing())

	diverged := fourAgreeing()
	diverged[0].SupportingFragmentIDs = []string{"srv-9"}
	res := e.Consensus(diverged)

	assert.Less(t, res.AggregateConfidence, agreeing.AggregateConfidence)
	assert.NotEmpty(t, res.Contradictions)
}

func TestConsensusNoPairs(t *testing.T) {
	e := New(Config{})
	res := e.Consensus([]models.AgentFinding{finding(models.RoleGeneralist, "user-database", "inc-1")})

	require.Empty(t, res.Agreement)
	assert.Equal(t, 0.0, res.AggregateConfidence)
}

func TestConsensusCustomThreshold(t *testing.T) {
	e := New(Config{ContradictionThreshold: 0.5})
	findings := []models.AgentFinding{
		finding(models.RoleRootCause, "user-database", "inc-1", "rb-1"),
		finding(models.RoleImpact, "user-database", "inc-1", "srv-1"),
	}
	res := e.Consensus(findings)

	// Jaccard 1/3 is below the raised threshold.
	assert.Len(t, res.Contradictions, 1)
	assert.False(t, math.IsNaN(res.AggregateConfidence))
}
