package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ragpipe/internal/vector"
)

// Store is an in-process vector index with exact cosine search. It backs
// tests and single-shot CLI runs where no vector database is available.
type Store struct {
	mu        sync.RWMutex
	records   map[string]vector.Record
	dimension int
}

func NewStore(dimension int) *Store {
	return &Store{records: map[string]vector.Record{}, dimension: dimension}
}

func (s *Store) EnsureSchema(ctx context.Context) error { return nil }

func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	for _, r := range records {
		if s.dimension > 0 && len(r.Vector) != s.dimension {
			return fmt.Errorf("record %s: vector has dimension %d, want %d", r.ID, len(r.Vector), s.dimension)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		s.records[r.ID] = r
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vec []float32, k int, filter vector.Filter) ([]vector.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if s.dimension > 0 && len(vec) != s.dimension {
		return nil, fmt.Errorf("query vector has dimension %d, want %d", len(vec), s.dimension)
	}

	s.mu.RLock()
	matches := make([]vector.Match, 0, len(s.records))
	for id, r := range s.records {
		if filter.DocumentID != "" && r.Chunk.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		matches = append(matches, vector.Match{ID: id, Chunk: r.Chunk, Kind: r.Kind, Score: cosine(vec, r.Vector)})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *Store) DeleteStale(ctx context.Context, documentID, keepRevision string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if r.Chunk.DocumentID == documentID && r.Revision != keepRevision {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns a stored record by id.
func (s *Store) Get(id string) (vector.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
