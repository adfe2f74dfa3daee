package retrieval

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"ragpipe/internal/domain"
	"ragpipe/internal/llm"
	"ragpipe/internal/middleware"
	"ragpipe/internal/vector"
)

// Stages reported in RetrievalError.
const (
	StageEmbedding = "embedding query"
	StageSearching = "searching vector store"
	StageReranking = "reranking"
)

type RerankResult struct {
	Index int
	Score float64
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]RerankResult, error)
}

type Config struct {
	// DefaultK is used when a caller passes k == 0.
	DefaultK int
	// CacheSize bounds the query embedding cache. Zero disables it.
	CacheSize int
	// RerankCandidates is how many chunks are fetched for the reranker.
	RerankCandidates int
	// Alpha below 1 mixes a keyword pass into the candidate search on stores
	// that support it. Zero means pure vector search.
	Alpha float32
}

// Service is the retriever: it embeds a query and returns the closest chunks
// ordered by descending score, ties broken by ascending chunk id.
type Service struct {
	embedder llm.Embedder
	store    vector.Store
	reranker Reranker
	logger   *QueryLogger
	cache    *lru.Cache[string, []float32]
	cfg      Config
}

// NewService builds a retriever. r and l may be nil.
func NewService(e llm.Embedder, s vector.Store, r Reranker, l *QueryLogger, cfg Config) (*Service, error) {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = 1
	}
	svc := &Service{embedder: e, store: s, reranker: r, logger: l, cfg: cfg}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		svc.cache = cache
	}
	return svc, nil
}

func (s *Service) DefaultK() int {
	return s.cfg.DefaultK
}

// ResolveK applies the default to k == 0 and rejects negative values.
func (s *Service) ResolveK(k int) (int, error) {
	switch {
	case k == 0:
		return s.cfg.DefaultK, nil
	case k < 0:
		return 0, domain.ErrInvalidK
	}
	return k, nil
}

// EmbedQuery returns the query vector, served from the cache when possible.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if s.cache != nil {
		if vec, ok := s.cache.Get(query); ok {
			slog.DebugContext(ctx, "query embedding cache hit")
			return vec, nil
		}
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &domain.RetrievalError{Stage: StageEmbedding, Err: err}
	}
	if s.cache != nil {
		s.cache.Add(query, vec)
	}
	return vec, nil
}

// Search runs the similarity search for an already embedded query.
func (s *Service) Search(ctx context.Context, query string, vec []float32, k int) (domain.RetrievalResult, error) {
	start := time.Now()
	k, err := s.ResolveK(k)
	if err != nil {
		return nil, err
	}

	want := k
	if s.reranker != nil && s.cfg.RerankCandidates > want {
		want = s.cfg.RerankCandidates
	}
	// a chunk may own both a body and a summary record
	var filter vector.Filter
	if s.cfg.Alpha < 1 {
		filter.Keywords, filter.Alpha = strings.TrimSpace(query), s.cfg.Alpha
	}
	matches, err := s.store.Query(ctx, vec, want*2, filter)
	if err != nil {
		return nil, &domain.RetrievalError{Stage: StageSearching, Err: err}
	}

	results := dedupe(matches)
	Sort(results)
	if len(results) > want {
		results = results[:want]
	}

	if s.reranker != nil && len(results) > 0 {
		results, err = s.rerank(ctx, query, results)
		if err != nil {
			return nil, err
		}
	}
	if len(results) > k {
		results = results[:k]
	}

	if s.logger != nil {
		entry := QueryLogEntry{
			Query:         query,
			K:             k,
			Alpha:         s.cfg.Alpha,
			NumResults:    len(results),
			ChunkIDs:      chunkIDs(results),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		}
		if len(results) > 0 {
			entry.TopScore = results[0].Score
		}
		s.logger.Log(entry)
	}
	return results, nil
}

// Retrieve embeds query and searches for its top k chunks.
func (s *Service) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	if _, err := s.ResolveK(k); err != nil {
		return nil, err
	}
	vec, err := s.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, query, vec, k)
}

func (s *Service) rerank(ctx context.Context, query string, candidates domain.RetrievalResult) (domain.RetrievalResult, error) {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Chunk.Text
	}
	ranked, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil {
		return nil, &domain.RetrievalError{Stage: StageReranking, Err: err}
	}

	seen := make(map[int]bool, len(ranked))
	out := make(domain.RetrievalResult, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		c := candidates[r.Index]
		c.Score = float32(r.Score)
		out = append(out, c)
	}
	Sort(out)
	return out, nil
}

// dedupe keeps the best scoring record per chunk.
func dedupe(matches []vector.Match) domain.RetrievalResult {
	byChunk := make(map[string]int, len(matches))
	out := make(domain.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		id := m.Chunk.ID
		if id == "" {
			id = m.ID
			m.Chunk.ID = id
		}
		if i, ok := byChunk[id]; ok {
			if m.Score > out[i].Score {
				out[i].Score = m.Score
				out[i].Kind = m.Kind
			}
			continue
		}
		byChunk[id] = len(out)
		out = append(out, domain.ScoredChunk{Chunk: m.Chunk, Score: m.Score, Kind: m.Kind})
	}
	return out
}

// Sort orders results by descending score, then ascending chunk id.
func Sort(r domain.RetrievalResult) {
	slices.SortStableFunc(r, func(a, b domain.ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.Chunk.ID, b.Chunk.ID)
	})
}

func chunkIDs(r domain.RetrievalResult) []string {
	ids := make([]string, len(r))
	for i, c := range r {
		ids[i] = c.Chunk.ID
	}
	return ids
}
