package query_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragpipe/features/query"
	"ragpipe/internal/domain"
)

type MockAnswerer struct{ mock.Mock }

func (m *MockAnswerer) Answer(ctx context.Context, q string, k int) (domain.Answer, error) {
	args := m.Called(ctx, q, k)
	return args.Get(0).(domain.Answer), args.Error(1)
}

type MockSearcher struct{ mock.Mock }

func (m *MockSearcher) Retrieve(ctx context.Context, q string, k int) (domain.RetrievalResult, error) {
	args := m.Called(ctx, q, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.RetrievalResult), args.Error(1)
}

func post(t *testing.T, fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	fn(w, req)
	return w
}

func TestHandler_Ask(t *testing.T) {
	a := new(MockAnswerer)
	h := query.NewHandler(a, new(MockSearcher))

	a.On("Answer", mock.Anything, "What is the TFR in Kenya?", 3).Return(domain.Answer{
		Query:    "What is the TFR in Kenya?",
		Text:     "3.3 births per woman [1].",
		ChunkIDs: []string{"c1"},
	}, nil)

	w := post(t, h.Ask, `{"query":"What is the TFR in Kenya?","k":3}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data domain.Answer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "3.3 births per woman [1].", body.Data.Text)
	assert.Equal(t, []string{"c1"}, body.Data.ChunkIDs)
}

func TestHandler_Ask_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"Empty query", domain.ErrEmptyQuery, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Invalid k", fmt.Errorf("resolve: %w", domain.ErrInvalidK), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Retrieval", &domain.RetrievalError{Stage: "searching vector store", Err: errors.New("down")}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"Generation", &domain.GenerationError{Err: errors.New("quota")}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"Timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"Other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := new(MockAnswerer)
			a.On("Answer", mock.Anything, mock.Anything, mock.Anything).Return(domain.Answer{}, tt.err)
			h := query.NewHandler(a, new(MockSearcher))

			w := post(t, h.Ask, `{"query":"q"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestHandler_Ask_InvalidJSON(t *testing.T) {
	a := new(MockAnswerer)
	h := query.NewHandler(a, new(MockSearcher))

	w := post(t, h.Ask, `{invalid`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_JSON")
	a.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Search(t *testing.T) {
	s := new(MockSearcher)
	h := query.NewHandler(new(MockAnswerer), s)

	s.On("Retrieve", mock.Anything, "migration", 0).Return(domain.RetrievalResult{
		{Chunk: domain.Chunk{ID: "c2", DocumentID: "wpp.pdf", Position: 4, Text: "Net migration..."}, Score: 0.91, Kind: domain.RecordKindBody},
	}, nil)

	w := post(t, h.Search, `{"query":"migration"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []query.SearchHit `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "c2", body.Data[0].ChunkID)
	assert.Equal(t, 4, body.Data[0].Position)
	assert.InDelta(t, 0.91, body.Data[0].Score, 1e-6)
}
