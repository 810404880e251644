package embedding

import (
	"context"
	"math"
)

// Mock is a deterministic provider for tests and local runs. Vectors are
// derived from the text bytes and normalized, so equal texts embed
// identically and similarity stays stable across runs.
type Mock struct {
	dimension int
}

// NewMock creates a mock provider of the given dimension.
func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = 1536
	}
	return &Mock{dimension: dimension}
}

// Dimension returns the vector size the mock produces.
func (m *Mock) Dimension() int { return m.dimension }

func (m *Mock) EmbedBatch(ctx context.Context, embeddingType string, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, m.dimension)
		for j, r := range embeddingType + "|" + text {
			v[j%m.dimension] += float32(r) / 1000.0
		}
		vectors[i] = normalize(v)
	}
	return vectors, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

var _ Provider = (*Mock)(nil)
