package vector

import (
	"context"
	"time"
)

// WithTimeout bounds every call to s by d. A non-positive d returns s.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: d}
}

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

func (t *timeoutStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.EnsureSchema(ctx)
}

func (t *timeoutStore) Upsert(ctx context.Context, records []Record) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Upsert(ctx, records)
}

func (t *timeoutStore) Query(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Query(ctx, vec, k, filter)
}

func (t *timeoutStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Delete(ctx, id)
}

func (t *timeoutStore) DeleteStale(ctx context.Context, documentID, keepRevision string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DeleteStale(ctx, documentID, keepRevision)
}

func (t *timeoutStore) Close() error { return t.next.Close() }
