package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/singularity-ai/knowledge-core/internal/cache"
	"github.com/singularity-ai/knowledge-core/internal/observability"
)

// Cached wraps a Provider with a byte-cache lookaside so repeated texts
// are embedded once. Only the misses of a batch reach the inner
// provider; results come back in input order.
type Cached struct {
	inner  Provider
	bytes  cache.ByteCache
	ttl    time.Duration
	logger *observability.Logger
}

// NewCached builds the caching decorator. A zero ttl means entries
// never expire on the cache side.
func NewCached(inner Provider, bytes cache.ByteCache, ttl time.Duration, logger *observability.Logger) *Cached {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Cached{
		inner:  inner,
		bytes:  bytes,
		ttl:    ttl,
		logger: logger.WithComponent("embedding-cache"),
	}
}

func cacheKey(embeddingType, text string) string {
	sum := sha256.Sum256([]byte(embeddingType + "|" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func (c *Cached) EmbedBatch(ctx context.Context, embeddingType string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		data, err := c.bytes.Get(ctx, cacheKey(embeddingType, text))
		if err != nil {
			if !errors.Is(err, cache.ErrCacheMiss) {
				// Cache trouble degrades to a provider call, never a failure.
				c.logger.Warn().Err(err).Msg("embedding cache lookup failed")
			}
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
			continue
		}
		var v []float32
		if err := json.Unmarshal(data, &v); err != nil {
			c.logger.Warn().Err(err).Msg("corrupt cached embedding, re-embedding")
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
			continue
		}
		vectors[i] = v
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, embeddingType, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	for j, v := range fresh {
		vectors[missIdx[j]] = v
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if err := c.bytes.Set(ctx, cacheKey(embeddingType, missTexts[j]), data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("embedding cache store failed")
		}
	}
	return vectors, nil
}

var _ Provider = (*Cached)(nil)
