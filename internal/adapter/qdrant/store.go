package qdrant

import (
	"context"
	"fmt"
	"io"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"ragpipe/internal/vector"
)

type Store struct {
	points      qdrantclient.PointsClient
	collections qdrantclient.CollectionsClient
	conn        io.Closer
	collection  string
	dimension   int
}

// Dial connects to the Qdrant gRPC endpoint.
func Dial(host string, port int, apiKey, collection string, dimension int) (*Store, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if apiKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
			ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}))
	}
	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", host, port), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	s := NewStore(qdrantclient.NewPointsClient(conn), qdrantclient.NewCollectionsClient(conn), collection, dimension)
	s.conn = conn
	return s, nil
}

func NewStore(points qdrantclient.PointsClient, collections qdrantclient.CollectionsClient, collection string, dimension int) *Store {
	return &Store{points: points, collections: collections, collection: collection, dimension: dimension}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	resp, err := s.collections.CollectionExists(ctx, &qdrantclient.CollectionExistsRequest{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}
	_, err = s.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrantclient.NewVectorsConfig(&qdrantclient.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrantclient.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrantclient.PointStruct, 0, len(records))
	for _, r := range records {
		payload, err := qdrantclient.TryValueMap(vector.Properties(r))
		if err != nil {
			return fmt.Errorf("record %s payload: %w", r.ID, err)
		}
		points = append(points, &qdrantclient.PointStruct{
			Id:      qdrantclient.NewID(r.ID),
			Vectors: qdrantclient.NewVectors(r.Vector...),
			Payload: payload,
		})
	}
	wait := true
	_, err := s.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	return err
}

func (s *Store) Query(ctx context.Context, vec []float32, k int, filter vector.Filter) ([]vector.Match, error) {
	resp, err := s.points.Search(ctx, &qdrantclient.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(k),
		Filter:         toFilter(filter),
		WithPayload:    qdrantclient.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	matches := make([]vector.Match, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		chunk, kind := vector.ChunkFromProperties(payloadMap(p.GetPayload()))
		matches = append(matches, vector.Match{
			ID:    p.GetId().GetUuid(),
			Chunk: chunk,
			Kind:  kind,
			Score: p.GetScore(),
		})
	}
	return matches, nil
}

func toFilter(f vector.Filter) *qdrantclient.Filter {
	var must []*qdrantclient.Condition
	if f.DocumentID != "" {
		must = append(must, qdrantclient.NewMatch(vector.PropDocumentID, f.DocumentID))
	}
	if f.Kind != "" {
		must = append(must, qdrantclient.NewMatch(vector.PropKind, string(f.Kind)))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrantclient.Filter{Must: must}
}

func payloadMap(payload map[string]*qdrantclient.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch v.GetKind().(type) {
		case *qdrantclient.Value_StringValue:
			out[k] = v.GetStringValue()
		case *qdrantclient.Value_IntegerValue:
			out[k] = v.GetIntegerValue()
		case *qdrantclient.Value_DoubleValue:
			out[k] = v.GetDoubleValue()
		}
	}
	return out
}

func (s *Store) Delete(ctx context.Context, id string) error {
	wait := true
	_, err := s.points.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrantclient.NewPointsSelector(qdrantclient.NewID(id)),
	})
	return err
}

func (s *Store) DeleteStale(ctx context.Context, documentID, keepRevision string) (int, error) {
	filter := &qdrantclient.Filter{
		Must:    []*qdrantclient.Condition{qdrantclient.NewMatch(vector.PropDocumentID, documentID)},
		MustNot: []*qdrantclient.Condition{qdrantclient.NewMatch(vector.PropRevision, keepRevision)},
	}
	exact := true
	count, err := s.points.Count(ctx, &qdrantclient.CountPoints{CollectionName: s.collection, Filter: filter, Exact: &exact})
	if err != nil {
		return 0, err
	}
	n := int(count.GetResult().GetCount())
	if n == 0 {
		return 0, nil
	}
	wait := true
	_, err = s.points.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrantclient.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

var _ vector.Store = (*Store)(nil)
