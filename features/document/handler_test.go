package document_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragpipe/features/document"
	"ragpipe/internal/domain"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentRecord), args.Error(1)
}

func (m *MockRepo) Upsert(ctx context.Context, rec domain.DocumentRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockRepo) List(ctx context.Context) ([]domain.DocumentRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentRecord), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockPurger struct{ mock.Mock }

func (m *MockPurger) DeleteStale(ctx context.Context, documentID, keep string) (int, error) {
	args := m.Called(ctx, documentID, keep)
	return args.Int(0), args.Error(1)
}

func TestHandler_List(t *testing.T) {
	repo := new(MockRepo)
	repo.On("List", mock.Anything).Return(nil, nil)
	h := document.NewHandler(document.NewService(repo, new(MockPurger)))

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []domain.DocumentRecord `json:"data"`
		Meta map[string]int          `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Data)
	assert.Equal(t, 0, body.Meta["count"])
}

func TestHandler_List_Error(t *testing.T) {
	repo := new(MockRepo)
	repo.On("List", mock.Anything).Return(nil, errors.New("db down"))
	h := document.NewHandler(document.NewService(repo, new(MockPurger)))

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestHandler_Delete(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo := new(MockRepo)
		purger := new(MockPurger)
		repo.On("Get", mock.Anything, "a.md").Return(&domain.DocumentRecord{ID: "a.md"}, nil)
		purger.On("DeleteStale", mock.Anything, "a.md", "").Return(4, nil)
		repo.On("Delete", mock.Anything, "a.md").Return(nil)
		h := document.NewHandler(document.NewService(repo, purger))

		req := httptest.NewRequest(http.MethodDelete, "/documents/a.md", nil)
		req.SetPathValue("id", "a.md")
		rec := httptest.NewRecorder()
		h.Delete(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		repo.AssertExpectations(t)
		purger.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "x").Return(nil, nil)
		h := document.NewHandler(document.NewService(repo, new(MockPurger)))

		req := httptest.NewRequest(http.MethodDelete, "/documents/x", nil)
		req.SetPathValue("id", "x")
		rec := httptest.NewRecorder()
		h.Delete(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Purge failure keeps registry entry", func(t *testing.T) {
		repo := new(MockRepo)
		purger := new(MockPurger)
		repo.On("Get", mock.Anything, "a.md").Return(&domain.DocumentRecord{ID: "a.md"}, nil)
		purger.On("DeleteStale", mock.Anything, "a.md", "").Return(0, errors.New("weaviate down"))
		h := document.NewHandler(document.NewService(repo, purger))

		req := httptest.NewRequest(http.MethodDelete, "/documents/a.md", nil)
		req.SetPathValue("id", "a.md")
		rec := httptest.NewRecorder()
		h.Delete(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}
