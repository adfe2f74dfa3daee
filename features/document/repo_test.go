package document_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/features/document"
	"ragpipe/internal/domain"
)

var columns = []string{"id", "path", "content_hash", "content_type", "page_count", "chunk_count", "failed_chunks", "status", "error", "updated_at"}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)
	query := regexp.QuoteMeta("SELECT id, path, content_hash, content_type, page_count, chunk_count, failed_chunks, status, error, updated_at FROM documents WHERE id = $1")

	t.Run("Found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(query).WithArgs("wpp.pdf").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("wpp.pdf", "/data/wpp.pdf", "h1", "application/pdf", 52, 140, 0, "completed", "", now))

		rec, err := repo.Get(context.Background(), "wpp.pdf")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "h1", rec.ContentHash)
		assert.Equal(t, 52, rec.PageCount)
		assert.Equal(t, domain.DocumentStatusCompleted, rec.Status)
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		rec, err := repo.Get(context.Background(), "nope")
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	rec := domain.DocumentRecord{ID: "a.md", Path: "/data/a.md", ContentHash: "h", ContentType: "text/markdown",
		ChunkCount: 3, FailedChunks: 1, Status: domain.DocumentStatusPartial, Error: "1 of 3 chunks failed"}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("a.md", "/data/a.md", "h", "text/markdown", 0, 3, 1, "partial", "1 of 3 chunks failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Upsert(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a.md", "/a.md", "h1", "text/markdown", 0, 2, 0, "completed", "", now).
			AddRow("b.pdf", "/b.pdf", "", "", 0, 0, 0, "failed", "convert b.pdf: bad header", now))

	docs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, domain.DocumentStatusFailed, docs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).WithArgs("a.md").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(context.Background(), "a.md"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), COALESCE(SUM(chunk_count), 0) FROM documents")).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(3, 140))

	docs, chunks, err := repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, docs)
	assert.Equal(t, 140, chunks)
	assert.NoError(t, mock.ExpectationsWereMet())
}
