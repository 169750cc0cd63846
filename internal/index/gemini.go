package index

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"

	"github.com/moolen/triage/internal/logging"
)

const defaultEmbeddingModel = "gemini-embedding-001"

// GeminiEmbedder produces embeddings through the Gemini API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	logger    *logging.Logger
}

// NewGeminiEmbedder creates an embedder backed by the Gemini API. The API
// key is read from the environment by the genai client when apiKey is empty.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	if dimension <= 0 {
		dimension = 768
	}
	return &GeminiEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
		logger:    logging.GetLogger("index.embedder"),
	}, nil
}

func (e *GeminiEmbedder) Dimension() int { return e.dimension }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	dim := int32(e.dimension)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		out = append(out, normalizeVector(emb.Values))
	}
	e.logger.DebugWithFields("embedded batch",
		logging.Field("texts", len(texts)),
		logging.Field("model", e.model),
	)
	return out, nil
}
