package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/moolen/triage/internal/models"
)

// MemoryIndex is an immutable in-memory cosine index. Build it once from a
// fragment set; queries never mutate it, so it is safe to share.
type MemoryIndex struct {
	fragments []*models.KnowledgeFragment
	byID      map[string]*models.KnowledgeFragment
}

// NewMemoryIndex builds an index over the given fragments. Fragments
// without an embedding are resolvable by id but never returned by Query.
func NewMemoryIndex(fragments []*models.KnowledgeFragment) *MemoryIndex {
	byID := make(map[string]*models.KnowledgeFragment, len(fragments))
	for _, f := range fragments {
		byID[f.ID] = f
	}
	return &MemoryIndex{fragments: fragments, byID: byID}
}

func (m *MemoryIndex) Size(_ context.Context) (int, error) {
	return len(m.fragments), nil
}

func (m *MemoryIndex) GetFragment(_ context.Context, id string) (*models.KnowledgeFragment, error) {
	f, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("fragment %s not found", id)
	}
	return f, nil
}

// Query scores every fragment by cosine similarity mapped into [0,1] and
// returns the topK best, ties broken by fragment id ascending.
func (m *MemoryIndex) Query(_ context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(m.fragments))
	for _, f := range m.fragments {
		if len(f.Embedding) == 0 || len(f.Embedding) != len(vector) {
			continue
		}
		hits = append(hits, Hit{FragmentID: f.ID, Score: cosineScore(vector, f.Embedding)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].FragmentID < hits[j].FragmentID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// cosineScore maps cosine similarity from [-1,1] into [0,1].
func cosineScore(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	score := (cos + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
