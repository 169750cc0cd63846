package index

import (
	"context"
	"crypto/md5"
	"math"
)

// MockEmbedder derives deterministic vectors from an md5 digest of the
// text. It needs no network and gives stable, repeatable similarity
// rankings, which makes it the embedder of choice for tests and offline
// development.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a deterministic embedder of the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 16
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Dimension() int { return e.dimension }

func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := md5.Sum([]byte(text))
	base := make([]float32, len(sum))
	for i, b := range sum {
		base[i] = float32(b) / 255.0
	}
	out := make([]float32, e.dimension)
	for i := 0; i < e.dimension; i++ {
		out[i] = base[i%len(base)]
	}
	return normalizeVector(out), nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// normalizeVector scales the vector to unit length so cosine similarity
// reduces to a dot product. Zero vectors are returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
