package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/moolen/triage/internal/agent/provider"
	"github.com/moolen/triage/internal/config"
	"github.com/moolen/triage/internal/index"
	"github.com/moolen/triage/internal/ingest"
	"github.com/moolen/triage/internal/inventory"
)

// mockEmbeddingDim is used when no embedding backend is configured.
const mockEmbeddingDim = 256

// buildEmbedder selects the embedding backend: Gemini when an API key is
// present, the deterministic offline embedder otherwise. Either way the
// embedder is wrapped in an LRU cache.
func buildEmbedder(ctx context.Context, cfg *config.Config) (index.Embedder, error) {
	var base index.Embedder
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gemini, err := index.NewGeminiEmbedder(ctx, key, "", 0)
		if err != nil {
			return nil, fmt.Errorf("creating gemini embedder: %w", err)
		}
		base = gemini
	} else {
		base = index.NewMockEmbedder(mockEmbeddingDim)
	}
	return index.NewCachingEmbedder(base, cfg.EmbeddingCacheSize)
}

// indexHandle bundles a vector index with its cleanup. store is non-nil in
// memory mode and supports atomic snapshot swaps.
type indexHandle struct {
	index index.VectorIndex
	store *index.Store
	close func()
}

// buildIndex opens the pgvector index when a database is configured, or
// ingests the knowledge directory into an in-memory snapshot otherwise.
func buildIndex(ctx context.Context, cfg *config.Config, embedder index.Embedder, detector *inventory.EntityDetector) (*indexHandle, error) {
	if cfg.DatabaseURL != "" {
		pg, err := index.NewPgIndex(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening vector index: %w", err)
		}
		return &indexHandle{index: pg, close: pg.Close}, nil
	}

	builder := ingest.NewBuilder(embedder, detector)
	fragments, err := builder.BuildDir(ctx, cfg.KnowledgeDir)
	if err != nil {
		return nil, fmt.Errorf("ingesting knowledge base: %w", err)
	}
	store := index.NewStore(fragments)
	return &indexHandle{index: store, store: store, close: func() {}}, nil
}

func buildProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	pcfg := provider.DefaultConfig()
	pcfg.Model = cfg.Model
	return provider.New(ctx, cfg.Backend, pcfg)
}
