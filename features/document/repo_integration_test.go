package document_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/features/document"
	"ragpipe/internal/domain"
	"ragpipe/internal/testutils"
)

func TestDocumentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := document.NewPostgresRepo(s.DB)
	ctx := context.Background()

	missing, err := repo.Get(ctx, "wpp.pdf")
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec := domain.DocumentRecord{ID: "wpp.pdf", Path: "/data/wpp.pdf", ContentHash: "h1", Status: domain.DocumentStatusProcessing}
	require.NoError(t, repo.Upsert(ctx, rec))

	rec.Status = domain.DocumentStatusCompleted
	rec.ChunkCount = 12
	require.NoError(t, repo.Upsert(ctx, rec))

	got, err := repo.Get(ctx, "wpp.pdf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.DocumentStatusCompleted, got.Status)
	assert.Equal(t, 12, got.ChunkCount)

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, repo.Delete(ctx, "wpp.pdf"))
	docs, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
