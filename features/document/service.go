package document

import (
	"context"
	"log/slog"

	"ragpipe/internal/domain"
)

// VectorPurger removes the vector records of a document.
type VectorPurger interface {
	DeleteStale(ctx context.Context, documentID, keepRevision string) (int, error)
}

type Service struct {
	repo  Repository
	store VectorPurger
}

func NewService(repo Repository, store VectorPurger) *Service {
	return &Service{repo: repo, store: store}
}

func (s *Service) List(ctx context.Context) ([]domain.DocumentRecord, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	return s.repo.Get(ctx, id)
}

// Delete removes every vector record of the document, then its registry
// entry. It returns ErrNotFound for unknown documents.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	// no revision is empty, so every record of the document is stale
	n, err := s.store.DeleteStale(ctx, id, "")
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "document records deleted", "document_id", id, "records", n)
	return s.repo.Delete(ctx, id)
}
