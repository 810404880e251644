package vector

import (
	"context"
	"crypto/tls"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

// QdrantConfig holds Qdrant connection settings. An API key implies TLS.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantIndex implements Index against a Qdrant instance over gRPC.
type QdrantIndex struct {
	conn    *grpc.ClientConn
	points  pb.PointsClient
	collect pb.CollectionsClient
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// NewQdrantIndex connects to Qdrant. Local instances run without TLS or
// authentication; Qdrant Cloud needs the API key, which enables TLS.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, kgerrors.Upstream("vector", fmt.Errorf("connect to qdrant: %w", err))
	}

	return &QdrantIndex{
		conn:    conn,
		points:  pb.NewPointsClient(conn),
		collect: pb.NewCollectionsClient(conn),
	}, nil
}

func (q *QdrantIndex) CreateCollection(ctx context.Context, name string, vectorSize uint64, distance Distance) error {
	var dist pb.Distance
	switch distance {
	case DistanceCosine:
		dist = pb.Distance_Cosine
	case DistanceDot:
		dist = pb.Distance_Dot
	default:
		return kgerrors.Invalid("unknown distance %q", distance)
	}

	_, err := q.collect.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: dist,
				},
			},
		},
	})
	if err != nil {
		return kgerrors.Upstream("vector", fmt.Errorf("create collection %q: %w", name, err))
	}
	return nil
}

func (q *QdrantIndex) CollectionExists(ctx context.Context, name string) (bool, error) {
	resp, err := q.collect.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, kgerrors.Upstream("vector", fmt.Errorf("check collection %q: %w", name, err))
	}
	return resp.GetResult().GetExists(), nil
}

func (q *QdrantIndex) DeleteCollection(ctx context.Context, name string) error {
	_, err := q.collect.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		return kgerrors.Upstream("vector", fmt.Errorf("delete collection %q: %w", name, err))
	}
	return nil
}

func (q *QdrantIndex) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := q.collect.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, kgerrors.Upstream("vector", fmt.Errorf("list collections: %w", err))
	}
	names := make([]string, 0, len(resp.GetCollections()))
	for _, c := range resp.GetCollections() {
		names = append(names, c.GetName())
	}
	return names, nil
}

func (q *QdrantIndex) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Num{Num: p.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: toQdrantPayload(p.Payload),
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
		Wait:           &wait,
	})
	if err != nil {
		return kgerrors.Upstream("vector", fmt.Errorf("upsert %d points into %q: %w", len(points), collection, err))
	}
	return nil
}

func (q *QdrantIndex) DeletePoints(ctx context.Context, collection string, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: id}}
	}

	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
		Wait: &wait,
	})
	if err != nil {
		return kgerrors.Upstream("vector", fmt.Errorf("delete %d points from %q: %w", len(ids), collection, err))
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, params SearchParams) ([]ScoredPoint, error) {
	req := &pb.SearchPoints{
		CollectionName: params.Collection,
		Vector:         params.Vector,
		Limit:          params.Limit,
		ScoreThreshold: params.ScoreThreshold,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	filter, err := buildFilter(params.Filter)
	if err != nil {
		return nil, err
	}
	req.Filter = filter

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, kgerrors.Upstream("vector", fmt.Errorf("search %q: %w", params.Collection, err))
	}

	results := make([]ScoredPoint, len(resp.GetResult()))
	for i, scored := range resp.GetResult() {
		results[i] = ScoredPoint{
			ID:      scored.GetId().GetNum(),
			Score:   scored.GetScore(),
			Payload: fromQdrantPayload(scored.GetPayload()),
		}
	}
	return results, nil
}

func (q *QdrantIndex) CreatePayloadIndex(ctx context.Context, collection, field string, fieldType PayloadFieldType) error {
	var ft pb.FieldType
	switch fieldType {
	case FieldKeyword:
		ft = pb.FieldType_FieldTypeKeyword
	case FieldInteger:
		ft = pb.FieldType_FieldTypeInteger
	case FieldFloat:
		ft = pb.FieldType_FieldTypeFloat
	case FieldBool:
		ft = pb.FieldType_FieldTypeBool
	default:
		return kgerrors.Invalid("unknown payload field type %q", fieldType)
	}

	wait := true
	_, err := q.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      field,
		FieldType:      &ft,
		Wait:           &wait,
	})
	if err != nil {
		return kgerrors.Upstream("vector", fmt.Errorf("index payload field %q in %q: %w", field, collection, err))
	}
	return nil
}

func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

func buildFilter(f *Filter) (*pb.Filter, error) {
	if f == nil || len(f.Must) == 0 {
		return nil, nil
	}

	conditions := make([]*pb.Condition, 0, len(f.Must))
	for key, val := range f.Must {
		var match *pb.Match
		switch v := val.(type) {
		case string:
			match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}}
		case bool:
			match = &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: v}}
		case int:
			match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(v)}}
		case int32:
			match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(v)}}
		case int64:
			match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: v}}
		case uint64:
			match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(v)}}
		case float64:
			// JSON numbers decode as float64; filterable fields are integral.
			match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(v)}}
		default:
			return nil, kgerrors.Invalid("unsupported filter value for %q: %T", key, val)
		}
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{Key: key, Match: match},
			},
		})
	}

	return &pb.Filter{Must: conditions}, nil
}

func toQdrantPayload(payload map[string]any) map[string]*pb.Value {
	if payload == nil {
		return nil
	}
	out := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		out[k] = toQdrantValue(v)
	}
	return out
}

func toQdrantValue(v any) *pb.Value {
	switch t := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: t}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: t}}
	case uint64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(t)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: t}}
	case []any:
		values := make([]*pb.Value, len(t))
		for i, item := range t {
			values[i] = toQdrantValue(item)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	case map[string]any:
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: toQdrantPayload(t)}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprintf("%v", t)}}
	}
}

func fromQdrantPayload(payload map[string]*pb.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_ListValue:
		items := make([]any, len(kind.ListValue.GetValues()))
		for i, item := range kind.ListValue.GetValues() {
			items[i] = fromQdrantValue(item)
		}
		return items
	case *pb.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}

var _ Index = (*QdrantIndex)(nil)
