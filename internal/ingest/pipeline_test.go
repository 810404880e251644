package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singularity-ai/knowledge-core/internal/catalog"
	"github.com/singularity-ai/knowledge-core/internal/embedding"
	"github.com/singularity-ai/knowledge-core/internal/hybrid"
	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
	"github.com/singularity-ai/knowledge-core/internal/kv"
	"github.com/singularity-ai/knowledge-core/internal/parse"
	"github.com/singularity-ai/knowledge-core/internal/vector"
)

const samplePayload = "The first paragraph carries enough characters to stand on its own as a fragment.\n\n" +
	"The second paragraph also clears the minimum length threshold comfortably.\n\n" +
	"And a third paragraph closes out the document with a final observation."

type fakeRecorder struct {
	records []catalog.Record
	err     error
}

func (f *fakeRecorder) RecordIngestion(ctx context.Context, rec catalog.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

// failingKV fails Put for one specific key.
type failingKV struct {
	kv.Store
	failKey string
}

func (f *failingKV) Put(ctx context.Context, key string, value []byte) error {
	if key == f.failKey {
		return kgerrors.Upstream("kv", errors.New("disk full"))
	}
	return f.Store.Put(ctx, key, value)
}

func newTestPipeline(t *testing.T, kvStore kv.Store, recorder Recorder) (*Pipeline, *hybrid.Store) {
	t.Helper()
	ctx := context.Background()
	if kvStore == nil {
		kvStore = kv.NewMemoryStore()
	}
	cfg := hybrid.DefaultConfig()
	cfg.VectorSize = 16
	store, err := hybrid.NewStore(ctx, cfg, kvStore, vector.NewMemoryIndex(), embedding.NewMock(16), nil)
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(ctx))

	p := NewPipeline(parse.DefaultRegistry(), store, embedding.NewMock(16), recorder, Config{}, nil)
	return p, store
}

func TestIngestTextEndToEnd(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	p, store := newTestPipeline(t, nil, rec)

	sing := int64(7)
	result, err := p.Ingest(ctx, Request{
		Payload:       samplePayload,
		ResourceID:    "doc-1",
		SingularityID: &sing,
	})
	require.NoError(t, err)

	assert.Equal(t, "text", result.ParserType)
	assert.Equal(t, 3, result.ParsedFragments)
	assert.Equal(t, 3, result.TotalFragments)
	require.Len(t, result.FragmentPointIDs, 3)
	require.Len(t, result.SegmentIDs, 3)

	// The resource point is created before any fragment, and fragments
	// land in parse order, so ids increase monotonically.
	prev := result.ResourcePointID
	for _, id := range result.FragmentPointIDs {
		assert.Greater(t, id, prev)
		prev = id
	}

	resource, err := store.GetPoint(ctx, result.ResourcePointID)
	require.NoError(t, err)
	assert.Equal(t, 0, resource.Dimension)
	assert.Equal(t, "Resource: doc-1 (text) with 3 fragments", resource.Payload)
	require.NotNil(t, resource.SingularityID)
	assert.Equal(t, int64(7), *resource.SingularityID)

	// Fragment weight decays with parse order.
	first, err := store.GetPoint(ctx, result.FragmentPointIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, first.Dimension)
	assert.InDelta(t, 1.0, first.Weight, 1e-9)
	third, err := store.GetPoint(ctx, result.FragmentPointIDs[2])
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, third.Weight, 1e-9)

	// Each fragment is linked from the resource.
	for _, id := range result.FragmentPointIDs {
		_, err := store.GetSegment(ctx, result.ResourcePointID, id)
		require.NoError(t, err)
	}
}

func TestIngestAutoDetectsJSON(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t, nil, nil)

	result, err := p.Ingest(ctx, Request{
		Payload:    `{"user":{"name":"Alice","bio":"Software engineer with passion for AI"}}`,
		ResourceID: "doc-json",
	})
	require.NoError(t, err)
	assert.Equal(t, "json", result.ParserType)
	assert.Equal(t, 3, result.TotalFragments)
}

func TestIngestValidation(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t, nil, nil)

	_, err := p.Ingest(ctx, Request{ResourceID: "doc-1"})
	require.ErrorIs(t, err, kgerrors.ErrInvalidInput)

	_, err = p.Ingest(ctx, Request{Payload: samplePayload})
	require.ErrorIs(t, err, kgerrors.ErrInvalidInput)

	_, err = p.Ingest(ctx, Request{Payload: "x", ResourceID: "doc-1"})
	require.ErrorIs(t, err, kgerrors.ErrParserNotApplicable)
}

func TestIngestEmptyParseWritesNothing(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPipeline(t, nil, nil)

	// An empty JSON object parses cleanly but yields no fragments.
	_, err := p.Ingest(ctx, Request{
		Payload:     `{}`,
		ResourceID:  "doc-empty",
		ContentType: "json",
	})
	require.ErrorIs(t, err, kgerrors.ErrEmptyParse)

	_, err = store.GetPoint(ctx, 1)
	require.ErrorIs(t, err, kgerrors.ErrNotFound)
}

type miscountingProvider struct{}

func (miscountingProvider) EmbedBatch(ctx context.Context, embeddingType string, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)+1), nil
}

func TestIngestEmbeddingMismatchFailsFast(t *testing.T) {
	ctx := context.Background()
	_, store := newTestPipeline(t, nil, nil)

	p := NewPipeline(parse.DefaultRegistry(), store, miscountingProvider{}, nil, Config{}, nil)
	_, err := p.Ingest(ctx, Request{Payload: samplePayload, ResourceID: "doc-1"})
	require.ErrorIs(t, err, kgerrors.ErrEmbeddingMismatch)

	_, err = store.GetPoint(ctx, 1)
	require.ErrorIs(t, err, kgerrors.ErrNotFound)
}

func TestIngestToleratesFragmentFailure(t *testing.T) {
	ctx := context.Background()

	// The resource takes id 1 and fragments 2, 3, 4; the middle fragment
	// write fails at the KV layer and is dropped.
	failing := &failingKV{Store: kv.NewMemoryStore(), failKey: kv.PointKey(3)}
	p, store := newTestPipeline(t, failing, nil)

	result, err := p.Ingest(ctx, Request{Payload: samplePayload, ResourceID: "doc-1"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ParsedFragments)
	assert.Equal(t, 2, result.TotalFragments)
	assert.Equal(t, []int64{2, 4}, result.FragmentPointIDs)
	assert.Len(t, result.SegmentIDs, 2)

	_, err = store.GetPoint(ctx, 3)
	require.ErrorIs(t, err, kgerrors.ErrNotFound)
}

func TestIngestRecordsCatalog(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	p, _ := newTestPipeline(t, nil, rec)

	result, err := p.Ingest(ctx, Request{Payload: samplePayload, ResourceID: "doc-1"})
	require.NoError(t, err)

	require.Len(t, rec.records, 1)
	r := rec.records[0]
	assert.Equal(t, "doc-1", r.ResourceID)
	assert.Equal(t, result.ResourcePointID, r.ResourcePointID)
	assert.Equal(t, "text", r.ParserType)
	assert.Equal(t, 3, r.FragmentCount)
	assert.Equal(t, 3, r.SegmentCount)
	sum := sha256.Sum256([]byte(samplePayload))
	assert.Equal(t, hex.EncodeToString(sum[:]), r.PayloadSHA256)
}

func TestIngestCatalogFailureIsTolerated(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{err: errors.New("catalog down")}
	p, _ := newTestPipeline(t, nil, rec)

	result, err := p.Ingest(ctx, Request{Payload: samplePayload, ResourceID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalFragments)
}

func TestIngestSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPipeline(t, nil, nil)

	payload := strings.Join([]string{
		"Photosynthesis converts light energy into chemical energy inside plant cells.",
		"The mitochondria are the powerhouse of the cell and produce most of its ATP supply.",
	}, "\n\n")
	result, err := p.Ingest(ctx, Request{Payload: payload, ResourceID: "doc-bio"})
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalFragments)

	hits, err := store.Search(ctx, hybrid.SearchRequest{
		Query: "The mitochondria are the powerhouse of the cell and produce most of its ATP supply.",
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, result.FragmentPointIDs[1], hits[0].ID)
	assert.Contains(t, hits[0].Payload["payload"], "mitochondria")
}
