// Package retrieve ranks knowledge fragments against an incident query:
// semantic nearest-neighbor search plus a bounded score boost for fragments
// tied to the systems detected in the input.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/moolen/triage/internal/index"
	"github.com/moolen/triage/internal/logging"
	"github.com/moolen/triage/internal/models"
)

const (
	// systemBoost is added to fragments whose metadata system matches a
	// detected system. Bounded so it can never lift a near-zero score
	// above a near-perfect one.
	systemBoost = 0.15
	// boostFloor guards near-zero scores from being boosted at all.
	boostFloor = 0.05
	// overfetchFactor widens the candidate pool so boosting can promote
	// fragments that sat just below the cut.
	overfetchFactor = 3
)

// Retriever queries the vector index and produces the deterministic ranked
// context the agents reason over.
type Retriever struct {
	embedder index.Embedder
	idx      index.VectorIndex
	logger   *logging.Logger
}

// New creates a Retriever over the given embedder and index.
func New(embedder index.Embedder, idx index.VectorIndex) *Retriever {
	return &Retriever{
		embedder: embedder,
		idx:      idx,
		logger:   logging.GetLogger("retrieve"),
	}
}

// Retrieve embeds the query, fetches nearest fragments, applies the system
// boost, and returns at most topK fragments in deterministic order. Index
// failures surface as ErrRetrievalUnavailable; an empty result is valid.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, detectedSystems []models.SystemRef, topK int) (*models.RetrievalResult, error) {
	if topK <= 0 {
		topK = 5
	}

	vector, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", models.ErrRetrievalUnavailable, err)
	}

	hits, err := r.idx.Query(ctx, vector, topK*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("%w: querying index: %v", models.ErrRetrievalUnavailable, err)
	}

	detected := make(map[string]bool, len(detectedSystems))
	for _, s := range detectedSystems {
		detected[strings.ToLower(s.CanonicalName)] = true
	}

	scored := make([]models.ScoredFragment, 0, len(hits))
	for _, hit := range hits {
		fragment, err := r.idx.GetFragment(ctx, hit.FragmentID)
		if err != nil {
			return nil, fmt.Errorf("%w: loading fragment %s: %v", models.ErrRetrievalUnavailable, hit.FragmentID, err)
		}
		score := hit.Score
		if boosted := r.boost(fragment, score, detected); boosted > score {
			r.logger.DebugWithFields("system boost applied",
				logging.Field("fragment", fragment.ID),
				logging.Field("system", fragment.System()),
			)
			score = boosted
		}
		scored = append(scored, models.ScoredFragment{Fragment: fragment, Score: score})
	}

	sortFragments(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}

	r.logger.DebugWithFields("retrieval complete",
		logging.Field("hits", len(scored)),
		logging.Field("systems", len(detectedSystems)),
	)
	return &models.RetrievalResult{Fragments: scored}, nil
}

// boost returns the adjusted score for a fragment, or the original score
// when no boost applies.
func (r *Retriever) boost(fragment *models.KnowledgeFragment, score float64, detected map[string]bool) float64 {
	if len(detected) == 0 || score < boostFloor {
		return score
	}
	if !fragmentMatchesSystems(fragment, detected) {
		return score
	}
	boosted := score + systemBoost
	if boosted > 1.0 {
		boosted = 1.0
	}
	return boosted
}

// fragmentMatchesSystems checks the fragment's primary system and its full
// referenced-system list against the detected canonical names.
func fragmentMatchesSystems(fragment *models.KnowledgeFragment, detected map[string]bool) bool {
	if detected[strings.ToLower(fragment.System())] {
		return true
	}
	for _, name := range strings.Split(fragment.Metadata["systems"], ",") {
		if name != "" && detected[strings.ToLower(strings.TrimSpace(name))] {
			return true
		}
	}
	return false
}

// sortFragments orders by score descending, then source-kind priority
// (incident > runbook > server > contact), then fragment id ascending.
func sortFragments(scored []models.ScoredFragment) {
	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := a.Fragment.SourceKind.Priority(), b.Fragment.SourceKind.Priority(); pa != pb {
			return pa > pb
		}
		return a.Fragment.ID < b.Fragment.ID
	})
}
