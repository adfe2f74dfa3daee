package weaviate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"ragpipe/internal/vector"
)

type Store struct {
	client    *weaviate.Client
	className string
}

func NewStore(client *weaviate.Client, className string) *Store {
	if className == "" {
		className = vector.DefaultClass
	}
	return &Store{client: client, className: className}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, schemaClient{client: s.client}, s.className)
}

// Upsert writes records in one batch. Objects with an existing id are replaced.
func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		objects = append(objects, &models.Object{
			Class:      s.className,
			ID:         strfmt.UUID(r.ID),
			Properties: vector.Properties(r),
			Vector:     models.C11yVector(r.Vector),
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	var msgs []string
	for _, o := range resp {
		if o.Result == nil || o.Result.Errors == nil {
			continue
		}
		for _, e := range o.Result.Errors.Error {
			msgs = append(msgs, fmt.Sprintf("%s: %s", o.ID, e.Message))
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("batch upsert failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vec []float32, k int, filter vector.Filter) ([]vector.Match, error) {
	hybrid := filter.Keywords != "" && filter.Alpha < 1
	scoreField := "distance"
	if hybrid {
		scoreField = "score"
	}

	fields := []graphql.Field{
		{Name: vector.PropContent},
		{Name: vector.PropDocumentID},
		{Name: vector.PropChunkID},
		{Name: vector.PropPosition},
		{Name: vector.PropStart},
		{Name: vector.PropEnd},
		{Name: vector.PropKind},
		{Name: vector.PropSummary},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: scoreField}}},
	}

	get := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithLimit(k).
		WithFields(fields...)
	if hybrid {
		get = get.WithHybrid(s.client.GraphQL().HybridArgumentBuilder().
			WithQuery(filter.Keywords).
			WithVector(vec).
			WithAlpha(filter.Alpha))
	} else {
		get = get.WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vec))
	}
	if where := whereFilter(filter); where != nil {
		get = get.WithWhere(where)
	}

	res, err := get.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	var matches []vector.Match
	data, _ := res.Data["Get"].(map[string]interface{})
	rows, _ := data[s.className].([]interface{})
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		chunk, kind := vector.ChunkFromProperties(props)
		m := vector.Match{Chunk: chunk, Kind: kind}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			m.ID, _ = additional["id"].(string)
			if d, ok := additional["distance"].(float64); ok {
				// cosine distance is 1 - similarity
				m.Score = float32(1 - d)
			}
			m.Score = hybridScore(additional["score"], m.Score)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// hybridScore reads the fused score, which weaviate returns as a string.
func hybridScore(v interface{}, fallback float32) float32 {
	switch s := v.(type) {
	case string:
		if f, err := strconv.ParseFloat(s, 32); err == nil {
			return float32(f)
		}
	case float64:
		return float32(s)
	}
	return fallback
}

func whereFilter(f vector.Filter) *filters.WhereBuilder {
	var ops []*filters.WhereBuilder
	if f.DocumentID != "" {
		ops = append(ops, filters.Where().
			WithPath([]string{vector.PropDocumentID}).
			WithOperator(filters.Equal).
			WithValueText(f.DocumentID))
	}
	if f.Kind != "" {
		ops = append(ops, filters.Where().
			WithPath([]string{vector.PropKind}).
			WithOperator(filters.Equal).
			WithValueText(string(f.Kind)))
	}
	switch len(ops) {
	case 0:
		return nil
	case 1:
		return ops[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(ops)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.client.Data().Deleter().
		WithClassName(s.className).
		WithID(id).
		Do(ctx)
	var werr *fault.WeaviateClientError
	if errors.As(err, &werr) && werr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *Store) DeleteStale(ctx context.Context, documentID, keepRevision string) (int, error) {
	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().
					WithPath([]string{vector.PropDocumentID}).
					WithOperator(filters.Equal).
					WithValueText(documentID),
				filters.Where().
					WithPath([]string{vector.PropRevision}).
					WithOperator(filters.NotEqual).
					WithValueText(keepRevision),
			})).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if resp == nil || resp.Results == nil {
		return 0, nil
	}
	return int(resp.Results.Successful), nil
}

func (s *Store) Close() error { return nil }
