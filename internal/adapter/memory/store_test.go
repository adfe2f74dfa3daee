package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
	"ragpipe/internal/vector"
)

func record(doc string, pos int, rev string, vec ...float32) vector.Record {
	id := domain.ChunkID(doc, pos)
	return vector.Record{
		ID:       id,
		Vector:   vec,
		Chunk:    domain.Chunk{ID: id, DocumentID: doc, Position: pos, Text: doc},
		Kind:     domain.RecordKindBody,
		Revision: rev,
	}
}

func TestStore_QueryOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewStore(2)
	require.NoError(t, s.Upsert(ctx, []vector.Record{
		record("a", 0, "r1", 1, 0),
		record("a", 1, "r1", 0.7, 0.7),
		record("b", 0, "r1", 0, 1),
	}))

	matches, err := s.Query(ctx, []float32{1, 0}, 2, vector.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, domain.ChunkID("a", 0), matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, domain.ChunkID("a", 1), matches[1].ID)
}

func TestStore_QueryTiesAndLargeK(t *testing.T) {
	ctx := context.Background()
	s := NewStore(2)
	require.NoError(t, s.Upsert(ctx, []vector.Record{
		record("x", 0, "r", 1, 1),
		record("x", 1, "r", 2, 2),
		record("x", 2, "r", 3, 3),
	}))

	matches, err := s.Query(ctx, []float32{1, 1}, 50, vector.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.True(t, matches[0].ID < matches[1].ID && matches[1].ID < matches[2].ID)
}

func TestStore_Filter(t *testing.T) {
	ctx := context.Background()
	s := NewStore(0)
	summary := record("a", 0, "r", 1, 0)
	summary.ID = domain.SummaryRecordID(summary.ID)
	summary.Kind = domain.RecordKindSummary
	require.NoError(t, s.Upsert(ctx, []vector.Record{record("a", 0, "r", 1, 0), summary, record("b", 0, "r", 1, 0)}))

	matches, err := s.Query(ctx, []float32{1, 0}, 10, vector.Filter{DocumentID: "a", Kind: domain.RecordKindSummary})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, summary.ID, matches[0].ID)
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(2)
	r := record("a", 0, "r1", 1, 0)
	require.NoError(t, s.Upsert(ctx, []vector.Record{r}))
	require.NoError(t, s.Upsert(ctx, []vector.Record{r}))
	assert.Equal(t, 1, s.Len())
}

func TestStore_DeleteStale(t *testing.T) {
	ctx := context.Background()
	s := NewStore(2)
	require.NoError(t, s.Upsert(ctx, []vector.Record{
		record("a", 0, "old", 1, 0),
		record("a", 1, "old", 1, 0),
		record("b", 0, "old", 1, 0),
	}))
	require.NoError(t, s.Upsert(ctx, []vector.Record{record("a", 0, "new", 0, 1)}))

	n, err := s.DeleteStale(ctx, "a", "new")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, s.Len())

	_, ok := s.Get(domain.ChunkID("a", 1))
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, domain.ChunkID("b", 0)))
	assert.Equal(t, 1, s.Len())
}

func TestStore_RejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := NewStore(3)
	assert.Error(t, s.Upsert(ctx, []vector.Record{record("a", 0, "r", 1, 0)}))

	_, err := s.Query(ctx, []float32{1}, 1, vector.Filter{})
	assert.Error(t, err)

	_, err = s.Query(ctx, []float32{1, 0, 0}, 0, vector.Filter{})
	assert.Error(t, err)
}

func TestStore_EmptyQuery(t *testing.T) {
	matches, err := NewStore(2).Query(context.Background(), []float32{1, 0}, 5, vector.Filter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}
