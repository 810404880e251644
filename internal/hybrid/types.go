// Package hybrid unifies the key-value metadata store and the vector
// index into a single logical set of Points joined by Segments.
package hybrid

// Point is a knowledge node. The payload text lives only alongside the
// vector in the index payload, never in the key-value record.
type Point struct {
	ID            int64   `json:"id"`
	Layer         int     `json:"layer"`
	Dimension     int     `json:"dimension"` // 0 = resource (no vector), 1 = fragment
	Weight        float64 `json:"weight"`
	SingularityID *int64  `json:"singularityId,omitempty"`
	UserID        *int64  `json:"userId,omitempty"`
	Payload       string  `json:"-"`
}

// Segment is a directed edge between two Points, indexed under both the
// inbound and the outbound key.
type Segment struct {
	ID            int64   `json:"id"`
	FromID        int64   `json:"fromId"`
	ToID          int64   `json:"toId"`
	Weight        float64 `json:"weight"`
	Layer         int     `json:"layer"`
	Dimension     int     `json:"dimension"`
	SingularityID *int64  `json:"singularityId,omitempty"`
}

// Hit is one search result, ordered by score descending.
type Hit struct {
	ID      int64
	Score   float32
	Payload map[string]any
}

// SearchRequest carries a filtered similarity search. Exactly one of
// Query and QueryEmbedding must be set.
type SearchRequest struct {
	Query          string
	QueryEmbedding []float32
	SingularityID  *int64
	Dimension      *int
	Layer          *int
	Limit          uint64
	ScoreThreshold *float32
}
