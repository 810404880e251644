package hybrid

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singularity-ai/knowledge-core/internal/cache"
	"github.com/singularity-ai/knowledge-core/internal/embedding"
	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
	"github.com/singularity-ai/knowledge-core/internal/kv"
	"github.com/singularity-ai/knowledge-core/internal/observability"
	"github.com/singularity-ai/knowledge-core/internal/vector"
)

func newTestStore(t *testing.T) (*Store, kv.Store, *vector.MemoryIndex) {
	t.Helper()
	ctx := context.Background()
	kvStore := kv.NewMemoryStore()
	index := vector.NewMemoryIndex()
	cfg := DefaultConfig()
	cfg.VectorSize = 32

	s, err := NewStore(ctx, cfg, kvStore, index, embedding.NewMock(32), observability.NopLogger())
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollection(ctx))
	return s, kvStore, index
}

func i64(v int64) *int64 { return &v }

func TestAddPointAssignsIDAndStoresMetadata(t *testing.T) {
	ctx := context.Background()
	s, kvStore, index := newTestStore(t)

	id, err := s.AddPoint(ctx, nil, Point{
		Dimension:     1,
		Layer:         0,
		Weight:        1.0,
		SingularityID: i64(7),
		Payload:       "the quick brown fox",
	}, nil)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.GetPoint(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 1, got.Dimension)
	require.NotNil(t, got.SingularityID)
	assert.Equal(t, int64(7), *got.SingularityID)
	// Payload text is not persisted in the KV record.
	assert.Empty(t, got.Payload)

	raw, ok, err := kvStore.Get(ctx, kv.PointKey(id))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(raw), "quick brown")

	// The vector entry carries the payload text.
	hits, err := index.Search(ctx, vector.SearchParams{
		Collection: "points",
		Vector:     mustEmbed(t, "the quick brown fox"),
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(id), hits[0].ID)
	assert.Equal(t, "the quick brown fox", hits[0].Payload["payload"])
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := embedding.EmbedOne(context.Background(), embedding.NewMock(32), "fragment", text)
	require.NoError(t, err)
	return v
}

func TestResourcePointsNeverGetVectors(t *testing.T) {
	ctx := context.Background()
	s, _, index := newTestStore(t)

	id, err := s.AddPoint(ctx, nil, Point{
		Dimension: 0,
		Weight:    1.0,
		Payload:   "Resource: doc-1 (text) with 3 fragments",
	}, nil)
	require.NoError(t, err)

	hits, err := index.Search(ctx, vector.SearchParams{
		Collection: "points",
		Vector:     mustEmbed(t, "Resource: doc-1 (text) with 3 fragments"),
		Limit:      10,
	})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, uint64(id), h.ID)
	}
}

func TestAddPointSurvivesIndexFailure(t *testing.T) {
	ctx := context.Background()
	kvStore := kv.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.VectorSize = 32

	// No collection created: the upsert fails, the point must still land.
	s, err := NewStore(ctx, cfg, kvStore, vector.NewMemoryIndex(), embedding.NewMock(32), observability.NopLogger())
	require.NoError(t, err)

	id, err := s.AddPoint(ctx, nil, Point{Dimension: 1, Weight: 1.0, Payload: "text"}, nil)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.GetPoint(ctx, id)
	require.NoError(t, err)
}

type failingStore struct {
	kv.Store
	failKey string
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte) error {
	if key == f.failKey {
		return fmt.Errorf("disk full")
	}
	return f.Store.Put(ctx, key, value)
}

func TestAddPointKVFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	inner := kv.NewMemoryStore()
	failing := &failingStore{Store: inner, failKey: kv.PointKey(1)}
	cfg := DefaultConfig()
	cfg.VectorSize = 32

	s, err := NewStore(ctx, cfg, failing, vector.NewMemoryIndex(), embedding.NewMock(32), observability.NopLogger())
	require.NoError(t, err)

	_, err = s.AddPoint(ctx, nil, Point{Dimension: 1, Payload: "text"}, nil)
	require.ErrorIs(t, err, kgerrors.ErrUpstreamFailure)
}

func TestAddPointWithFromIDLinksSegment(t *testing.T) {
	ctx := context.Background()
	s, kvStore, _ := newTestStore(t)

	parent, err := s.AddPoint(ctx, nil, Point{Dimension: 0, Weight: 1.0}, nil)
	require.NoError(t, err)
	child, err := s.AddPoint(ctx, &parent, Point{Dimension: 1, Weight: 0.5, Payload: "fragment"}, nil)
	require.NoError(t, err)

	seg, err := s.GetSegment(ctx, parent, child)
	require.NoError(t, err)
	assert.Equal(t, parent, seg.FromID)
	assert.Equal(t, child, seg.ToID)

	// Edge pairing: both keys exist with identical records.
	inRaw, ok, err := kvStore.Get(ctx, kv.SegmentInKey(parent, child))
	require.NoError(t, err)
	require.True(t, ok)
	outRaw, ok, err := kvStore.Get(ctx, kv.SegmentOutKey(child, parent))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inRaw, outRaw)
}

func TestUpdatePointRefreshesAndDeletesVector(t *testing.T) {
	ctx := context.Background()
	s, _, index := newTestStore(t)

	id, err := s.AddPoint(ctx, nil, Point{Dimension: 1, Weight: 1.0, Payload: "original text here"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdatePoint(ctx, Point{ID: id, Dimension: 1, Weight: 0.3, Payload: "replacement text here"}, nil))
	hits, err := index.Search(ctx, vector.SearchParams{
		Collection: "points",
		Vector:     mustEmbed(t, "replacement text here"),
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "replacement text here", hits[0].Payload["payload"])
	assert.Equal(t, 0.3, hits[0].Payload["weight"])

	// Clearing the payload removes the vector entry.
	require.NoError(t, s.UpdatePoint(ctx, Point{ID: id, Dimension: 1, Weight: 0.3}, nil))
	hits, err = index.Search(ctx, vector.SearchParams{
		Collection: "points",
		Vector:     mustEmbed(t, "replacement text here"),
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)

	err = s.UpdatePoint(ctx, Point{ID: 9999, Dimension: 1, Payload: "x"}, nil)
	require.ErrorIs(t, err, kgerrors.ErrNotFound)
}

func TestDeletePointLeavesSegments(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	parent, err := s.AddPoint(ctx, nil, Point{Dimension: 0, Weight: 1.0}, nil)
	require.NoError(t, err)
	child, err := s.AddPoint(ctx, &parent, Point{Dimension: 1, Weight: 1.0, Payload: "fragment"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.DeletePoint(ctx, child))
	_, err = s.GetPoint(ctx, child)
	require.ErrorIs(t, err, kgerrors.ErrNotFound)

	// Dangling edge remains; callers tolerate it.
	_, err = s.GetSegment(ctx, parent, child)
	require.NoError(t, err)

	err = s.DeletePoint(ctx, child)
	require.ErrorIs(t, err, kgerrors.ErrNotFound)
}

func TestSegmentLifecycle(t *testing.T) {
	ctx := context.Background()
	s, kvStore, _ := newTestStore(t)

	_, err := s.AddSegment(ctx, 0, 42)
	require.ErrorIs(t, err, kgerrors.ErrInvalidInput)

	segID, err := s.AddSegment(ctx, 17, 42)
	require.NoError(t, err)
	assert.Positive(t, segID)

	from, err := s.SegmentsFrom(ctx, 17)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, int64(42), from[0].ToID)

	to, err := s.SegmentsTo(ctx, 42)
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, int64(17), to[0].FromID)

	require.NoError(t, s.DeleteSegment(ctx, 17, 42))

	// Both keys gone after deletion.
	for _, key := range []string{kv.SegmentInKey(17, 42), kv.SegmentOutKey(42, 17)} {
		ok, err := kvStore.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}

	err = s.DeleteSegment(ctx, 17, 42)
	require.ErrorIs(t, err, kgerrors.ErrNotFound)
}

func TestAddSegmentUndoesHalfWrite(t *testing.T) {
	ctx := context.Background()
	inner := kv.NewMemoryStore()
	failing := &failingStore{Store: inner, failKey: kv.SegmentOutKey(42, 17)}
	cfg := DefaultConfig()
	cfg.VectorSize = 32

	s, err := NewStore(ctx, cfg, failing, vector.NewMemoryIndex(), embedding.NewMock(32), observability.NopLogger())
	require.NoError(t, err)

	_, err = s.AddSegment(ctx, 17, 42)
	require.Error(t, err)

	// The inbound write was rolled back; no half-edge remains.
	ok, err := inner.Exists(ctx, kv.SegmentInKey(17, 42))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchFiltersBySingularityAndDimension(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	_, err := s.AddPoint(ctx, nil, Point{ID: 1001, Dimension: 0, Weight: 1.0, Payload: "resource summary"}, nil)
	require.NoError(t, err)
	_, err = s.AddPoint(ctx, nil, Point{ID: 1002, Dimension: 1, Weight: 1.0, SingularityID: i64(7), Payload: "shared fragment text"}, nil)
	require.NoError(t, err)
	_, err = s.AddPoint(ctx, nil, Point{ID: 1003, Dimension: 1, Weight: 1.0, SingularityID: i64(8), Payload: "shared fragment text"}, nil)
	require.NoError(t, err)

	dim := 1
	hits, err := s.Search(ctx, SearchRequest{
		Query:         "shared fragment text",
		SingularityID: i64(7),
		Dimension:     &dim,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1002), hits[0].ID)
}

func TestSearchValidatesQueryExclusivity(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	_, err := s.Search(ctx, SearchRequest{})
	require.ErrorIs(t, err, kgerrors.ErrInvalidInput)

	_, err = s.Search(ctx, SearchRequest{Query: "x", QueryEmbedding: make([]float32, 32)})
	require.ErrorIs(t, err, kgerrors.ErrInvalidInput)

	hits, err := s.Search(ctx, SearchRequest{QueryEmbedding: make([]float32, 32)})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

type countingEmbedder struct {
	inner embedding.Provider
	calls atomic.Int64
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, embeddingType string, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.inner.EmbedBatch(ctx, embeddingType, texts)
}

func TestSearchQueryCache(t *testing.T) {
	ctx := context.Background()
	kvStore := kv.NewMemoryStore()
	index := vector.NewMemoryIndex()
	cfg := DefaultConfig()
	cfg.VectorSize = 32
	provider := &countingEmbedder{inner: embedding.NewMock(32)}

	s, err := NewStore(ctx, cfg, kvStore, index, provider, observability.NopLogger())
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollection(ctx))
	s.UseQueryCache(cache.New(nil), time.Minute)

	_, err = s.AddPoint(ctx, nil, Point{Dimension: 1, Weight: 1.0, Payload: "the quick brown fox"}, nil)
	require.NoError(t, err)
	seeded := provider.calls.Load()

	first, err := s.Search(ctx, SearchRequest{Query: "quick fox", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// The repeat hits the cache: no second embedding, same results.
	second, err := s.Search(ctx, SearchRequest{Query: "quick fox", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, seeded+1, provider.calls.Load())

	// A different filter is a different key.
	_, err = s.Search(ctx, SearchRequest{Query: "quick fox", Limit: 5, SingularityID: i64(7)})
	require.NoError(t, err)
	assert.Equal(t, seeded+2, provider.calls.Load())

	// Caller-supplied vectors bypass the cache entirely.
	_, err = s.Search(ctx, SearchRequest{QueryEmbedding: mustEmbed(t, "quick fox"), Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, seeded+2, provider.calls.Load())
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedBatch(ctx context.Context, embeddingType string, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("provider unavailable")
}

func TestAddPointSurvivesEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	kvStore := kv.NewMemoryStore()
	index := vector.NewMemoryIndex()
	cfg := DefaultConfig()
	cfg.VectorSize = 32

	s, err := NewStore(ctx, cfg, kvStore, index, failingEmbedder{}, observability.NopLogger())
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollection(ctx))

	// The metadata write succeeds; the point simply has no vector entry.
	id, err := s.AddPoint(ctx, nil, Point{Dimension: 1, Weight: 1.0, Payload: "text"}, nil)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.GetPoint(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	hits, err := index.Search(ctx, vector.SearchParams{
		Collection: "points",
		Vector:     mustEmbed(t, "text"),
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
