// Package index provides the vector index the retriever queries: an
// embedding abstraction with cloud and deterministic local implementations,
// an in-memory cosine index, a Postgres/pgvector index, and an atomically
// swappable store fed by a knowledge-base directory watcher.
package index

import (
	"context"

	"github.com/moolen/triage/internal/models"
)

// Embedder produces embedding vectors for text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts in order; the result has one vector per
	// input text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the vector width this embedder produces.
	Dimension() int
}

// Hit is one nearest-neighbor result. Score is normalized similarity in
// [0,1], higher is better.
type Hit struct {
	FragmentID string
	Score      float64
}

// VectorIndex answers nearest-neighbor queries over knowledge fragments.
// The pipeline treats the index as read-only; population happens out of
// band through ingestion.
type VectorIndex interface {
	// Query returns up to topK hits sorted by score descending, ties
	// broken by fragment id ascending.
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	// GetFragment resolves a hit to its full fragment.
	GetFragment(ctx context.Context, id string) (*models.KnowledgeFragment, error)
	// Size returns the number of indexed fragments.
	Size(ctx context.Context) (int, error)
}
