// Package query serves questions over HTTP.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ragpipe/internal/domain"
	"ragpipe/internal/middleware"
)

type Answerer interface {
	Answer(ctx context.Context, query string, k int) (domain.Answer, error)
}

type Searcher interface {
	Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error)
}

type Request struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type SearchHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Position   int     `json:"position"`
	Kind       string  `json:"kind"`
	Score      float32 `json:"score"`
	Text       string  `json:"text"`
}

type Handler struct {
	answerer Answerer
	searcher Searcher
}

func NewHandler(a Answerer, s Searcher) *Handler {
	return &Handler{answerer: a, searcher: s}
}

// Ask runs the full question answering flow.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	ans, err := h.answerer.Answer(ctx, req.Query, req.K)
	if err != nil {
		h.writeFailure(ctx, w, err)
		return
	}
	h.writeData(ctx, w, ans)
}

// Search returns the ranked chunks for a query without generating an answer.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	results, err := h.searcher.Retrieve(ctx, req.Query, req.K)
	if err != nil {
		h.writeFailure(ctx, w, err)
		return
	}
	hits := make([]SearchHit, len(results))
	for i, res := range results {
		hits[i] = SearchHit{
			ChunkID:    res.Chunk.ID,
			DocumentID: res.Chunk.DocumentID,
			Position:   res.Chunk.Position,
			Kind:       string(res.Kind),
			Score:      res.Score,
			Text:       res.Chunk.Text,
		}
	}
	h.writeData(ctx, w, hits)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "INVALID_JSON", "Invalid JSON body", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	var re *domain.RetrievalError
	var ge *domain.GenerationError
	switch {
	case errors.Is(err, domain.ErrEmptyQuery), errors.Is(err, domain.ErrInvalidK):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		slog.ErrorContext(ctx, "query timed out", "error", err)
		h.writeError(ctx, w, "TIMEOUT", err.Error(), http.StatusGatewayTimeout)
	case errors.As(err, &re), errors.As(err, &ge):
		slog.ErrorContext(ctx, "query failed upstream", "error", err)
		h.writeError(ctx, w, "UPSTREAM_ERROR", err.Error(), http.StatusBadGateway)
	default:
		slog.ErrorContext(ctx, "query failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data":          data,
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
