package document

import (
	"context"
	"database/sql"
	"errors"

	"ragpipe/internal/domain"
)

type Repository interface {
	Get(ctx context.Context, id string) (*domain.DocumentRecord, error)
	Upsert(ctx context.Context, rec domain.DocumentRecord) error
	List(ctx context.Context) ([]domain.DocumentRecord, error)
	Delete(ctx context.Context, id string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const selectColumns = `id, path, content_hash, content_type, page_count, chunk_count, failed_chunks, status, error, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.DocumentRecord, error) {
	var rec domain.DocumentRecord
	var status string
	err := s.Scan(&rec.ID, &rec.Path, &rec.ContentHash, &rec.ContentType, &rec.PageCount,
		&rec.ChunkCount, &rec.FailedChunks, &status, &rec.Error, &rec.UpdatedAt)
	rec.Status = domain.DocumentStatus(status)
	return rec, err
}

// Get returns nil without error when the document was never ingested.
func (r *PostgresRepo) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM documents WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresRepo) Upsert(ctx context.Context, rec domain.DocumentRecord) error {
	query := `INSERT INTO documents (id, path, content_hash, content_type, page_count, chunk_count, failed_chunks, status, error, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
ON CONFLICT (id) DO UPDATE SET path = EXCLUDED.path, content_hash = EXCLUDED.content_hash, content_type = EXCLUDED.content_type,
page_count = EXCLUDED.page_count, chunk_count = EXCLUDED.chunk_count, failed_chunks = EXCLUDED.failed_chunks,
status = EXCLUDED.status, error = EXCLUDED.error, updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Path, rec.ContentHash, rec.ContentType, rec.PageCount,
		rec.ChunkCount, rec.FailedChunks, string(rec.Status), rec.Error)
	return err
}

func (r *PostgresRepo) List(ctx context.Context) ([]domain.DocumentRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM documents ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.DocumentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, rec)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// Counts returns the number of registered documents and the chunks they hold.
func (r *PostgresRepo) Counts(ctx context.Context) (documents, chunks int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(chunk_count), 0) FROM documents`
	err = r.db.QueryRowContext(ctx, query).Scan(&documents, &chunks)
	return documents, chunks, err
}
