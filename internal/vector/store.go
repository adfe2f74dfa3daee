package vector

import (
	"context"

	"ragpipe/internal/domain"
)

// Record is one embedding stored in the index. A chunk owns a body record
// and, when summaries are enabled, a summary record.
type Record struct {
	ID       string
	Vector   []float32
	Chunk    domain.Chunk
	Kind     domain.RecordKind
	Revision string
}

// Match is a record returned by a similarity query. Score is the cosine
// similarity, higher is closer.
type Match struct {
	ID    string
	Chunk domain.Chunk
	Kind  domain.RecordKind
	Score float32
}

// Filter narrows a query. Zero values match everything.
type Filter struct {
	DocumentID string
	Kind       domain.RecordKind
	// Keywords enables a hybrid lexical pass on stores that support one.
	// Alpha weighs the vector score against it: 1 is pure vector search.
	// Stores without keyword search ignore both.
	Keywords string
	Alpha    float32
}

// Store is the persistent vector index. Writes are upserts keyed by record id.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, id string) error
	// DeleteStale removes records of documentID whose revision differs from
	// keepRevision and reports how many were removed.
	DeleteStale(ctx context.Context, documentID, keepRevision string) (int, error)
	Close() error
}

// Properties flattens a record into the metadata stored next to its vector.
func Properties(r Record) map[string]interface{} {
	return map[string]interface{}{
		PropContent:    r.Chunk.Text,
		PropDocumentID: r.Chunk.DocumentID,
		PropChunkID:    r.Chunk.ID,
		PropPosition:   r.Chunk.Position,
		PropStart:      r.Chunk.Start,
		PropEnd:        r.Chunk.End,
		PropKind:       string(r.Kind),
		PropSummary:    r.Chunk.Summary,
		PropRevision:   r.Revision,
	}
}

// ChunkFromProperties rebuilds the chunk and record kind from stored
// metadata. Numbers may arrive as float64 (JSON) or as int types.
func ChunkFromProperties(props map[string]interface{}) (domain.Chunk, domain.RecordKind) {
	c := domain.Chunk{
		Text:       str(props[PropContent]),
		DocumentID: str(props[PropDocumentID]),
		ID:         str(props[PropChunkID]),
		Summary:    str(props[PropSummary]),
		Position:   num(props[PropPosition]),
		Start:      num(props[PropStart]),
		End:        num(props[PropEnd]),
	}
	kind := domain.RecordKind(str(props[PropKind]))
	if kind == "" {
		kind = domain.RecordKindBody
	}
	return c, kind
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case float32:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}
