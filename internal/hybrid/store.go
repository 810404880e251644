package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/singularity-ai/knowledge-core/internal/cache"
	"github.com/singularity-ai/knowledge-core/internal/embedding"
	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
	"github.com/singularity-ai/knowledge-core/internal/kv"
	"github.com/singularity-ai/knowledge-core/internal/observability"
	"github.com/singularity-ai/knowledge-core/internal/vector"
)

// Config holds hybrid store settings.
type Config struct {
	Collection    string
	VectorSize    uint64
	Distance      vector.Distance
	EmbeddingType string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Collection:    "points",
		VectorSize:    1536,
		Distance:      vector.DistanceCosine,
		EmbeddingType: "fragment",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Collection == "" {
		return kgerrors.Invalid("collection name is required")
	}
	if c.VectorSize == 0 {
		return kgerrors.Invalid("vector size must be positive")
	}
	if c.Distance != vector.DistanceCosine && c.Distance != vector.DistanceDot {
		return kgerrors.Invalid("distance must be cosine or dot")
	}
	return nil
}

// Store coordinates Point and Segment CRUD across the KV store, the
// vector index, and the embedding provider. It holds no locks across
// index or provider calls.
type Store struct {
	cfg      Config
	kv       kv.Store
	index    vector.Index
	provider embedding.Provider
	alloc    *Allocator
	logger   *observability.Logger

	queries  *cache.Cache
	queryTTL time.Duration
}

// NewStore wires the hybrid store. The allocator is created here so its
// persisted marks live in the same KV store as the point records.
func NewStore(ctx context.Context, cfg Config, kvStore kv.Store, index vector.Index, provider embedding.Provider, logger *observability.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	alloc, err := NewAllocator(ctx, kvStore)
	if err != nil {
		return nil, err
	}
	return &Store{
		cfg:      cfg,
		kv:       kvStore,
		index:    index,
		provider: provider,
		alloc:    alloc,
		logger:   logger.WithComponent("hybrid"),
	}, nil
}

// EnsureCollection creates the vector collection if missing and creates
// the payload indexes for every filterable field. Index creation is
// idempotent on the engine side.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.index.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.index.CreateCollection(ctx, s.cfg.Collection, s.cfg.VectorSize, s.cfg.Distance); err != nil {
			return err
		}
	}

	fields := []struct {
		name string
		ft   vector.PayloadFieldType
	}{
		{"layer", vector.FieldInteger},
		{"dimension", vector.FieldInteger},
		{"weight", vector.FieldFloat},
		{"singularityId", vector.FieldInteger},
		{"userId", vector.FieldInteger},
		{"fromId", vector.FieldInteger},
	}
	for _, f := range fields {
		if err := s.index.CreatePayloadIndex(ctx, s.cfg.Collection, f.name, f.ft); err != nil {
			return err
		}
	}
	return nil
}

// AddPoint creates a Point. The KV write is fatal for the call; index
// and embedding failures after it are logged and swallowed, so metadata
// is at-least-once and the vector best-effort. A non-nil fromID appends
// a fromID->id segment; a segment failure surfaces alongside the already
// issued id.
func (s *Store) AddPoint(ctx context.Context, fromID *int64, p Point, emb []float32) (int64, error) {
	if p.ID == 0 {
		id, err := s.alloc.NextPointID(ctx)
		if err != nil {
			return 0, err
		}
		p.ID = id
	}

	if err := kv.PutJSON(ctx, s.kv, kv.PointKey(p.ID), p); err != nil {
		return 0, kgerrors.Upstream("kv", err)
	}

	// A dimension-0 point never gets a vector entry.
	if p.Dimension != 0 && p.Payload != "" {
		if emb == nil {
			vec, err := embedding.EmbedOne(ctx, s.provider, s.cfg.EmbeddingType, p.Payload)
			if err != nil {
				s.logger.Warn().Err(err).Int64("point_id", p.ID).Msg("embedding failed, point stored without vector")
			} else {
				emb = vec
			}
		}
		if emb != nil {
			if err := s.index.UpsertPoints(ctx, s.cfg.Collection, []vector.Point{s.toVectorPoint(p, fromID, emb)}); err != nil {
				s.logger.Warn().Err(err).Int64("point_id", p.ID).Msg("vector upsert failed, point stored without vector")
			}
		}
	}

	if fromID != nil {
		if _, err := s.AddSegment(ctx, *fromID, p.ID); err != nil {
			return p.ID, fmt.Errorf("point %d stored, linking segment failed: %w", p.ID, err)
		}
	}
	return p.ID, nil
}

// UpdatePoint rewrites a Point's metadata and refreshes its vector. An
// empty payload removes the vector entry.
func (s *Store) UpdatePoint(ctx context.Context, p Point, emb []float32) error {
	if p.ID == 0 {
		return kgerrors.Invalid("point id is required")
	}
	exists, err := s.kv.Exists(ctx, kv.PointKey(p.ID))
	if err != nil {
		return kgerrors.Upstream("kv", err)
	}
	if !exists {
		return kgerrors.NotFound("point", p.ID)
	}

	if err := kv.PutJSON(ctx, s.kv, kv.PointKey(p.ID), p); err != nil {
		return kgerrors.Upstream("kv", err)
	}

	if p.Payload == "" || p.Dimension == 0 {
		return s.index.DeletePoints(ctx, s.cfg.Collection, []uint64{uint64(p.ID)})
	}

	if emb == nil {
		emb, err = embedding.EmbedOne(ctx, s.provider, s.cfg.EmbeddingType, p.Payload)
		if err != nil {
			return err
		}
	}
	return s.index.UpsertPoints(ctx, s.cfg.Collection, []vector.Point{s.toVectorPoint(p, nil, emb)})
}

// DeletePoint removes the metadata record and the vector entry.
// Segments referencing the id are left in place.
func (s *Store) DeletePoint(ctx context.Context, id int64) error {
	exists, err := s.kv.Exists(ctx, kv.PointKey(id))
	if err != nil {
		return kgerrors.Upstream("kv", err)
	}
	if !exists {
		return kgerrors.NotFound("point", id)
	}
	if err := s.kv.Delete(ctx, kv.PointKey(id)); err != nil {
		return kgerrors.Upstream("kv", err)
	}
	return s.index.DeletePoints(ctx, s.cfg.Collection, []uint64{uint64(id)})
}

// GetPoint loads a Point's metadata record.
func (s *Store) GetPoint(ctx context.Context, id int64) (Point, error) {
	var p Point
	ok, err := kv.GetJSON(ctx, s.kv, kv.PointKey(id), &p)
	if err != nil {
		return Point{}, kgerrors.Upstream("kv", err)
	}
	if !ok {
		return Point{}, kgerrors.NotFound("point", id)
	}
	return p, nil
}

// AddSegment stores a directed edge under both its inbound and outbound
// keys. A half-failure is undone; if the undo also fails the error
// carries the orphaned key.
func (s *Store) AddSegment(ctx context.Context, fromID, toID int64) (int64, error) {
	if fromID == 0 || toID == 0 {
		return 0, kgerrors.Invalid("segment endpoints must be non-zero")
	}

	id, err := s.alloc.NextSegmentID(ctx)
	if err != nil {
		return 0, err
	}
	seg := Segment{ID: id, FromID: fromID, ToID: toID, Weight: 1.0}

	inKey := kv.SegmentInKey(fromID, toID)
	outKey := kv.SegmentOutKey(toID, fromID)

	if err := kv.PutJSON(ctx, s.kv, inKey, seg); err != nil {
		return 0, kgerrors.Upstream("kv", err)
	}
	if err := kv.PutJSON(ctx, s.kv, outKey, seg); err != nil {
		if undoErr := s.kv.Delete(ctx, inKey); undoErr != nil {
			return 0, kgerrors.Inconsistent(inKey, fmt.Errorf("outbound write failed (%w), undo failed: %w", err, undoErr))
		}
		return 0, kgerrors.Upstream("kv", err)
	}
	return id, nil
}

// DeleteSegment removes both edge keys. It succeeds only when both were
// present.
func (s *Store) DeleteSegment(ctx context.Context, fromID, toID int64) error {
	inKey := kv.SegmentInKey(fromID, toID)
	outKey := kv.SegmentOutKey(toID, fromID)

	inExists, err := s.kv.Exists(ctx, inKey)
	if err != nil {
		return kgerrors.Upstream("kv", err)
	}
	outExists, err := s.kv.Exists(ctx, outKey)
	if err != nil {
		return kgerrors.Upstream("kv", err)
	}
	if !inExists || !outExists {
		if inExists != outExists {
			// Half-edge: the invariant is already broken, report it.
			orphan := inKey
			if outExists {
				orphan = outKey
			}
			return kgerrors.Inconsistent(orphan, nil)
		}
		return kgerrors.NotFound("segment", fmt.Sprintf("%d->%d", fromID, toID))
	}

	if err := s.kv.Delete(ctx, inKey); err != nil {
		return kgerrors.Upstream("kv", err)
	}
	if err := s.kv.Delete(ctx, outKey); err != nil {
		return kgerrors.Inconsistent(outKey, err)
	}
	return nil
}

// GetSegment loads the edge fromID->toID.
func (s *Store) GetSegment(ctx context.Context, fromID, toID int64) (Segment, error) {
	var seg Segment
	ok, err := kv.GetJSON(ctx, s.kv, kv.SegmentInKey(fromID, toID), &seg)
	if err != nil {
		return Segment{}, kgerrors.Upstream("kv", err)
	}
	if !ok {
		return Segment{}, kgerrors.NotFound("segment", fmt.Sprintf("%d->%d", fromID, toID))
	}
	return seg, nil
}

// SegmentsFrom returns every edge leaving id, ascending by target id key.
func (s *Store) SegmentsFrom(ctx context.Context, id int64) ([]Segment, error) {
	start, end := kv.SegmentInScan(id)
	return s.scanSegments(ctx, start, end)
}

// SegmentsTo returns every edge arriving at id, ascending by source id key.
func (s *Store) SegmentsTo(ctx context.Context, id int64) ([]Segment, error) {
	start, end := kv.SegmentOutScan(id)
	return s.scanSegments(ctx, start, end)
}

func (s *Store) scanSegments(ctx context.Context, start, end string) ([]Segment, error) {
	var segments []Segment
	err := s.kv.RangeScan(ctx, start, end, func(key string, value []byte) error {
		var seg Segment
		if err := json.Unmarshal(value, &seg); err != nil {
			return kgerrors.Inconsistent(key, err)
		}
		segments = append(segments, seg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return segments, nil
}

// UseQueryCache caches text-query search results for ttl. Repeated
// identical queries within the window skip both the embedding call and
// the index round trip.
func (s *Store) UseQueryCache(c *cache.Cache, ttl time.Duration) {
	s.queries = c
	s.queryTTL = ttl
}

// Search embeds the query (unless the caller supplied a vector), builds
// the equality filter, and returns the index results verbatim in score
// order.
func (s *Store) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if (req.Query == "") == (req.QueryEmbedding == nil) {
		return nil, kgerrors.Invalid("exactly one of query and queryEmbedding must be set")
	}

	// Caller-supplied vectors bypass the cache; the key covers only the
	// textual request.
	if s.queries != nil && req.Query != "" {
		v, err := s.queries.Put(ctx, searchKey(req), s.queryTTL, func(ctx context.Context) (any, error) {
			return s.runSearch(ctx, req)
		}, false)
		if err != nil {
			return nil, err
		}
		return v.([]Hit), nil
	}
	return s.runSearch(ctx, req)
}

func searchKey(req SearchRequest) string {
	var b strings.Builder
	b.WriteString("search:")
	b.WriteString(req.Query)
	fmt.Fprintf(&b, "|limit=%d", req.Limit)
	if req.SingularityID != nil {
		fmt.Fprintf(&b, "|sing=%d", *req.SingularityID)
	}
	if req.Dimension != nil {
		fmt.Fprintf(&b, "|dim=%d", *req.Dimension)
	}
	if req.Layer != nil {
		fmt.Fprintf(&b, "|layer=%d", *req.Layer)
	}
	if req.ScoreThreshold != nil {
		fmt.Fprintf(&b, "|min=%g", *req.ScoreThreshold)
	}
	return b.String()
}

func (s *Store) runSearch(ctx context.Context, req SearchRequest) ([]Hit, error) {
	vec := req.QueryEmbedding
	if vec == nil {
		var err error
		vec, err = embedding.EmbedOne(ctx, s.provider, s.cfg.EmbeddingType, req.Query)
		if err != nil {
			return nil, err
		}
	}

	var filter *vector.Filter
	must := map[string]any{}
	if req.SingularityID != nil {
		must["singularityId"] = *req.SingularityID
	}
	if req.Dimension != nil {
		must["dimension"] = *req.Dimension
	}
	if req.Layer != nil {
		must["layer"] = *req.Layer
	}
	if len(must) > 0 {
		filter = &vector.Filter{Must: must}
	}

	limit := req.Limit
	if limit == 0 {
		limit = 10
	}

	scored, err := s.index.Search(ctx, vector.SearchParams{
		Collection:     s.cfg.Collection,
		Vector:         vec,
		Filter:         filter,
		Limit:          limit,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(scored))
	for i, sp := range scored {
		hits[i] = Hit{ID: int64(sp.ID), Score: sp.Score, Payload: sp.Payload}
	}
	return hits, nil
}

func (s *Store) toVectorPoint(p Point, fromID *int64, emb []float32) vector.Point {
	payload := map[string]any{
		"layer":     int64(p.Layer),
		"dimension": int64(p.Dimension),
		"weight":    p.Weight,
		"payload":   p.Payload,
	}
	if p.SingularityID != nil {
		payload["singularityId"] = *p.SingularityID
	}
	if p.UserID != nil {
		payload["userId"] = *p.UserID
	}
	if fromID != nil {
		payload["fromId"] = *fromID
	}
	return vector.Point{ID: uint64(p.ID), Vector: emb, Payload: payload}
}
