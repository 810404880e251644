// Package vector provides the similarity index for point embeddings.
// The production backend is Qdrant over gRPC; an in-memory index covers
// tests and single-process runs.
package vector

import "context"

// Distance selects the similarity metric of a collection.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceDot    Distance = "dot"
)

// Point is an indexed embedding with its attached payload.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      uint64
	Score   float32
	Payload map[string]any
}

// Filter restricts a search to points whose payload fields equal the
// given values. A nil value map matches everything.
type Filter struct {
	Must map[string]any
}

// SearchParams bundles a Search request.
type SearchParams struct {
	Collection     string
	Vector         []float32
	Filter         *Filter
	Limit          uint64
	ScoreThreshold *float32
}

// PayloadFieldType selects the index type for CreatePayloadIndex.
type PayloadFieldType string

const (
	FieldKeyword PayloadFieldType = "keyword"
	FieldInteger PayloadFieldType = "integer"
	FieldFloat   PayloadFieldType = "float"
	FieldBool    PayloadFieldType = "bool"
)

// Index is the vector index adapter.
type Index interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64, distance Distance) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)

	UpsertPoints(ctx context.Context, collection string, points []Point) error
	DeletePoints(ctx context.Context, collection string, ids []uint64) error
	Search(ctx context.Context, params SearchParams) ([]ScoredPoint, error)

	// CreatePayloadIndex is idempotent; indexing an already-indexed
	// field is not an error.
	CreatePayloadIndex(ctx context.Context, collection, field string, fieldType PayloadFieldType) error

	Close() error
}
