// Package embedding defines the batch text-to-vector provider consumed
// by the hybrid store and the ingestion pipeline.
package embedding

import (
	"context"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

// Provider turns a batch of texts into one vector per text. Vectors come
// back in input order and all share the provider's dimension.
type Provider interface {
	EmbedBatch(ctx context.Context, embeddingType string, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text through a batch provider.
func EmbedOne(ctx context.Context, p Provider, embeddingType, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, embeddingType, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, kgerrors.ErrEmbeddingMismatch
	}
	return vectors[0], nil
}
