package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

// MemoryIndex is an in-process Index used in tests and for local runs
// without a Qdrant instance. Searches are exact brute-force scans.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	size     uint64
	distance Distance
	points   map[uint64]Point
	indexed  map[string]PayloadFieldType
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memCollection)}
}

func (m *MemoryIndex) CreateCollection(ctx context.Context, name string, vectorSize uint64, distance Distance) error {
	if distance != DistanceCosine && distance != DistanceDot {
		return kgerrors.Invalid("unknown distance %q", distance)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return kgerrors.Invalid("collection %q already exists", name)
	}
	m.collections[name] = &memCollection{
		size:     vectorSize,
		distance: distance,
		points:   make(map[uint64]Point),
		indexed:  make(map[string]PayloadFieldType),
	}
	return nil
}

func (m *MemoryIndex) CollectionExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MemoryIndex) DeleteCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		return kgerrors.NotFound("collection", name)
	}
	delete(m.collections, name)
	return nil
}

func (m *MemoryIndex) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryIndex) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return kgerrors.NotFound("collection", collection)
	}
	for _, p := range points {
		if uint64(len(p.Vector)) != col.size {
			return kgerrors.Invalid("point %d: vector size %d, collection expects %d", p.ID, len(p.Vector), col.size)
		}
		cp := Point{ID: p.ID, Vector: append([]float32(nil), p.Vector...)}
		if p.Payload != nil {
			cp.Payload = make(map[string]any, len(p.Payload))
			for k, v := range p.Payload {
				cp.Payload[k] = v
			}
		}
		col.points[p.ID] = cp
	}
	return nil
}

func (m *MemoryIndex) DeletePoints(ctx context.Context, collection string, ids []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return kgerrors.NotFound("collection", collection)
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, params SearchParams) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[params.Collection]
	if !ok {
		return nil, kgerrors.NotFound("collection", params.Collection)
	}
	if uint64(len(params.Vector)) != col.size {
		return nil, kgerrors.Invalid("query vector size %d, collection expects %d", len(params.Vector), col.size)
	}

	var hits []ScoredPoint
	for _, p := range col.points {
		if !matchesFilter(p.Payload, params.Filter) {
			continue
		}
		score := similarity(params.Vector, p.Vector, col.distance)
		if params.ScoreThreshold != nil && score < *params.ScoreThreshold {
			continue
		}
		hits = append(hits, ScoredPoint{ID: p.ID, Score: score, Payload: p.Payload})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if params.Limit > 0 && uint64(len(hits)) > params.Limit {
		hits = hits[:params.Limit]
	}
	return hits, nil
}

func (m *MemoryIndex) CreatePayloadIndex(ctx context.Context, collection, field string, fieldType PayloadFieldType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return kgerrors.NotFound("collection", collection)
	}
	col.indexed[field] = fieldType
	return nil
}

func (m *MemoryIndex) Close() error { return nil }

func similarity(a, b []float32, distance Distance) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if distance == DistanceDot {
		return float32(dot)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func matchesFilter(payload map[string]any, f *Filter) bool {
	if f == nil || len(f.Must) == 0 {
		return true
	}
	for key, want := range f.Must {
		got, ok := payload[key]
		if !ok || !valueEqual(got, want) {
			return false
		}
	}
	return true
}

// valueEqual compares payload values with numeric widening so that an
// int64 stored value matches an int or float64 filter value.
func valueEqual(a, b any) bool {
	if na, aok := toFloat(a); aok {
		nb, bok := toFloat(b)
		return bok && na == nb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

var _ Index = (*MemoryIndex)(nil)
