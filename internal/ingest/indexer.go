package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ragpipe/internal/domain"
	"ragpipe/internal/llm"
	"ragpipe/internal/vector"
)

var errEmptyVector = errors.New("embedding service returned an empty vector")

// ChunkTask is one unit of indexing work. It is also the payload of queued
// chunk messages and of recorded chunk failures.
type ChunkTask struct {
	Chunk         domain.Chunk `json:"chunk"`
	Revision      string       `json:"revision"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

type IndexerConfig struct {
	Concurrency   int
	RatePerSecond float64
	SummaryMode   SummaryMode
	Retry         RetryPolicy
}

// Indexer embeds chunks and upserts their records into the vector store.
type Indexer struct {
	embedder llm.Embedder
	store    vector.Store
	limiter  *rate.Limiter
	cfg      IndexerConfig
}

func NewIndexer(e llm.Embedder, s vector.Store, cfg IndexerConfig) *Indexer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Indexer{embedder: e, store: s, limiter: limiter, cfg: cfg}
}

// IndexResult summarizes one Index call. Failed holds an IngestionError per
// chunk that could not be indexed, in chunk order.
type IndexResult struct {
	Indexed int
	Failed  []*domain.IngestionError
	Purged  int
}

// Index writes the records of every chunk of one document revision. Chunks
// are independent: a failing chunk is reported and the others continue.
// Once every chunk succeeded, records left over from older revisions of the
// document are removed.
func (ix *Indexer) Index(ctx context.Context, documentID, revision string, chunks []domain.Chunk) IndexResult {
	failures := make([]*domain.IngestionError, len(chunks))
	var mu sync.Mutex
	indexed := 0

	var g errgroup.Group
	g.SetLimit(ix.cfg.Concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			if err := ix.IndexChunk(ctx, ChunkTask{Chunk: c, Revision: revision}); err != nil {
				var ie *domain.IngestionError
				if !errors.As(err, &ie) {
					ie = &domain.IngestionError{DocumentID: c.DocumentID, ChunkID: c.ID, Position: c.Position, Err: err}
				}
				failures[i] = ie
				return nil
			}
			mu.Lock()
			indexed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := IndexResult{Indexed: indexed}
	for _, f := range failures {
		if f != nil {
			res.Failed = append(res.Failed, f)
		}
	}
	if len(res.Failed) > 0 || ctx.Err() != nil {
		return res
	}

	purged, err := do(ctx, ix.cfg.Retry, func(ctx context.Context) (int, error) {
		return ix.store.DeleteStale(ctx, documentID, revision)
	})
	if err != nil {
		// stale records only cost recall; the new revision is fully written
		slog.WarnContext(ctx, "failed to purge stale records", "document_id", documentID, "error", err)
		return res
	}
	if purged > 0 {
		slog.InfoContext(ctx, "purged stale records", "document_id", documentID, "count", purged)
	}
	res.Purged = purged
	return res
}

// IndexChunk embeds one chunk (and its summary in chunk mode) and upserts the
// resulting records. Persistent failure is returned as an IngestionError.
func (ix *Indexer) IndexChunk(ctx context.Context, task ChunkTask) error {
	c := task.Chunk
	fail := func(err error) error {
		return &domain.IngestionError{DocumentID: c.DocumentID, ChunkID: c.ID, Position: c.Position, Err: err}
	}

	body, err := ix.embed(ctx, ix.bodyText(c))
	if err != nil {
		return fail(err)
	}
	records := []vector.Record{{
		ID:       c.ID,
		Vector:   body,
		Chunk:    c,
		Kind:     domain.RecordKindBody,
		Revision: task.Revision,
	}}

	if ix.cfg.SummaryMode == SummaryChunk && c.Summary != "" {
		sum, err := ix.embed(ctx, c.Summary)
		if err != nil {
			return fail(err)
		}
		records = append(records, vector.Record{
			ID:       domain.SummaryRecordID(c.ID),
			Vector:   sum,
			Chunk:    c,
			Kind:     domain.RecordKindSummary,
			Revision: task.Revision,
		})
	}

	_, err = do(ctx, ix.cfg.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ix.store.Upsert(ctx, records)
	})
	if err != nil {
		slog.ErrorContext(ctx, "store write failed", "document_id", c.DocumentID, "chunk_id", c.ID, "error", err)
		return fail(err)
	}
	if len(records) == 1 {
		// a summary record from an earlier run would otherwise outlive this one
		_, err = do(ctx, ix.cfg.Retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, ix.store.Delete(ctx, domain.SummaryRecordID(c.ID))
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to drop superseded summary record", "document_id", c.DocumentID, "chunk_id", c.ID, "error", err)
			return fail(err)
		}
	}
	slog.DebugContext(ctx, "chunk indexed", "document_id", c.DocumentID, "position", c.Position, "records", len(records))
	return nil
}

// bodyText is the text embedded for a chunk's body record. In document mode
// the document summary is prepended.
func (ix *Indexer) bodyText(c domain.Chunk) string {
	if ix.cfg.SummaryMode == SummaryDocument && c.Summary != "" {
		return c.Summary + "\n\n" + c.Text
	}
	return c.Text
}

func (ix *Indexer) embed(ctx context.Context, text string) ([]float32, error) {
	return do(ctx, ix.cfg.Retry, func(ctx context.Context) ([]float32, error) {
		if err := ix.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vec, err := ix.embedder.Embed(ctx, text)
		if err != nil {
			slog.WarnContext(ctx, "embedding attempt failed", "error", err)
			return nil, err
		}
		if len(vec) == 0 {
			return nil, errEmptyVector
		}
		return vec, nil
	})
}
