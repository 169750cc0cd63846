package index

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moolen/triage/internal/logging"
)

// CachingEmbedder wraps another Embedder with an LRU cache keyed by the
// exact input text. Repeated analyses of the same log snippet skip the
// embedding backend entirely.
type CachingEmbedder struct {
	inner  Embedder
	cache  *lru.Cache[string, []float32]
	logger *logging.Logger
}

// NewCachingEmbedder wraps inner with an LRU of the given size.
func NewCachingEmbedder(inner Embedder, size int) (*CachingEmbedder, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachingEmbedder{
		inner:  inner,
		cache:  cache,
		logger: logging.GetLogger("index.cache"),
	}, nil
}

func (e *CachingEmbedder) Dimension() int { return e.inner.Dimension() }

func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		e.logger.Debug("embedding cache hit")
		return v, nil
	}
	v, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(text, v)
	return v, nil
}

func (e *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := e.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		e.cache.Add(missing[j], v)
	}
	return out, nil
}

// Len returns the number of cached embeddings.
func (e *CachingEmbedder) Len() int {
	return e.cache.Len()
}
