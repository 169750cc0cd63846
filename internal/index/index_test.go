package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/triage/internal/models"
)

func fragmentWithEmbedding(id string, embedding []float32) *models.KnowledgeFragment {
	return &models.KnowledgeFragment{
		ID:         id,
		Text:       "fragment " + id,
		Embedding:  embedding,
		SourceKind: models.SourceIncident,
		SourceID:   "doc-" + id,
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()

	a, err := e.Embed(ctx, "connection pool exhausted")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "connection pool exhausted")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "disk full on volume data")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestMemoryIndexQuerySorted(t *testing.T) {
	ctx := context.Background()
	e := NewMockEmbedder(16)

	texts := []string{"pool exhausted", "disk full", "replication lag", "auth failure"}
	var fragments []*models.KnowledgeFragment
	for i, txt := range texts {
		v, err := e.Embed(ctx, txt)
		require.NoError(t, err)
		fragments = append(fragments, fragmentWithEmbedding(fmt.Sprintf("f%d", i), v))
	}
	idx := NewMemoryIndex(fragments)

	query, err := e.Embed(ctx, "pool exhausted")
	require.NoError(t, err)

	hits, err := idx.Query(ctx, query, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// Exact text match scores highest.
	assert.Equal(t, "f0", hits[0].FragmentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}
}

func TestMemoryIndexTieBreakByID(t *testing.T) {
	ctx := context.Background()
	v := []float32{1, 0, 0, 0}

	// Identical embeddings force a score tie.
	idx := NewMemoryIndex([]*models.KnowledgeFragment{
		fragmentWithEmbedding("f-b", v),
		fragmentWithEmbedding("f-a", v),
	})

	hits, err := idx.Query(ctx, v, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "f-a", hits[0].FragmentID)
	assert.Equal(t, "f-b", hits[1].FragmentID)
}

func TestMemoryIndexNeverPads(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex([]*models.KnowledgeFragment{
		fragmentWithEmbedding("f1", []float32{1, 0}),
	})

	hits, err := idx.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemoryIndexGetFragment(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex([]*models.KnowledgeFragment{
		fragmentWithEmbedding("f1", []float32{1, 0}),
	})

	f, err := idx.GetFragment(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1", f.ID)

	_, err = idx.GetFragment(ctx, "missing")
	assert.Error(t, err)
}

func TestCachingEmbedderHitsCache(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{inner: NewMockEmbedder(8)}
	cached, err := NewCachingEmbedder(counting, 32)
	require.NoError(t, err)

	first, err := cached.Embed(ctx, "same query")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "same query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// Second call must not reach the backend.
	assert.Equal(t, 1, counting.calls)
	assert.Equal(t, 1, cached.Len())
}

func TestCachingEmbedderBatchPartialMiss(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{inner: NewMockEmbedder(8)}
	cached, err := NewCachingEmbedder(counting, 32)
	require.NoError(t, err)

	_, err = cached.Embed(ctx, "a")
	require.NoError(t, err)
	counting.calls = 0

	vectors, err := cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	// Only "b" was missing.
	assert.Equal(t, 1, counting.batchTexts)
}

func TestStoreSwapIsAtomic(t *testing.T) {
	ctx := context.Background()
	v := []float32{1, 0}
	store := NewStore([]*models.KnowledgeFragment{fragmentWithEmbedding("old-1", v)})

	hits, err := store.Query(ctx, v, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "old-1", hits[0].FragmentID)

	store.Swap([]*models.KnowledgeFragment{
		fragmentWithEmbedding("new-1", v),
		fragmentWithEmbedding("new-2", v),
	})

	hits, err = store.Query(ctx, v, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "old-1", h.FragmentID)
	}
}

type countingEmbedder struct {
	inner      Embedder
	calls      int
	batchTexts int
}

func (c *countingEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.batchTexts += len(texts)
	return c.inner.EmbedBatch(ctx, texts)
}
