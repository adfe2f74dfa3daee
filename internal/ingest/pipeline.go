package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ragpipe/internal/convert"
	"ragpipe/internal/domain"
	"ragpipe/internal/text"
)

// Loader reads and converts one source file below root.
type Loader interface {
	Load(ctx context.Context, root, path string) (domain.Document, error)
}

// Registry remembers which revision of each document was ingested. Get
// returns nil without error for unknown documents.
type Registry interface {
	Get(ctx context.Context, id string) (*domain.DocumentRecord, error)
	Upsert(ctx context.Context, rec domain.DocumentRecord) error
}

// FailureRecorder keeps chunks that failed indexing so they can be retried.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, task ChunkTask, cause error) error
}

// Observer receives ingestion outcomes, typically for metrics.
type Observer interface {
	DocumentIngested(status domain.DocumentStatus)
	ChunksIndexed(succeeded, failed int)
}

type Option func(*Pipeline)

func WithRegistry(r Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

func WithFailureRecorder(f FailureRecorder) Option {
	return func(p *Pipeline) { p.failures = f }
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

func WithDocumentConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Pipeline runs convert, segment, summarize and index for a corpus.
type Pipeline struct {
	loader      Loader
	segmenter   *text.Segmenter
	summarizer  *Summarizer
	indexer     *Indexer
	registry    Registry
	failures    FailureRecorder
	observer    Observer
	concurrency int
	now         func() time.Time
}

func NewPipeline(loader Loader, seg *text.Segmenter, sum *Summarizer, idx *Indexer, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader:      loader,
		segmenter:   seg,
		summarizer:  sum,
		indexer:     idx,
		concurrency: 1,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) Indexer() *Indexer {
	return p.indexer
}

// DocumentResult is the outcome of ingesting one source file.
type DocumentResult struct {
	DocumentID    string
	Status        domain.DocumentStatus
	Skipped       bool
	Chunks        int
	Indexed       int
	Purged        int
	Failed        []*domain.IngestionError
	SummaryErrors []error
	// Err is set when the document could not be ingested at all.
	Err error
}

// Report aggregates a whole ingestion run.
type Report struct {
	Documents        int
	DocumentsOK      int
	DocumentsPartial int
	DocumentsFailed  int
	DocumentsSkipped int
	ChunksIndexed    int
	ChunksFailed     int
	SummariesFailed  int
	Errors           []error
	Duration         time.Duration
}

func (r *Report) add(res DocumentResult) {
	r.Documents++
	r.ChunksIndexed += res.Indexed
	r.ChunksFailed += len(res.Failed)
	r.SummariesFailed += len(res.SummaryErrors)
	for _, f := range res.Failed {
		r.Errors = append(r.Errors, f)
	}
	if res.Err != nil {
		r.Errors = append(r.Errors, res.Err)
	}
	switch {
	case res.Skipped:
		r.DocumentsSkipped++
	case res.Status == domain.DocumentStatusCompleted:
		r.DocumentsOK++
	case res.Status == domain.DocumentStatusPartial:
		r.DocumentsPartial++
	default:
		r.DocumentsFailed++
	}
}

// HasFailures reports whether any document or chunk failed.
func (r *Report) HasFailures() bool {
	return r.DocumentsFailed > 0 || r.ChunksFailed > 0
}

// AllFailed reports whether the run attempted work and nothing succeeded.
func (r *Report) AllFailed() bool {
	return r.Documents > 0 && r.DocumentsOK == 0 && r.DocumentsPartial == 0 && r.DocumentsSkipped == 0
}

// Run ingests every file under root matching pattern. Per-document and
// per-chunk failures end up in the report; the returned error is reserved
// for failures that prevent the run from starting.
func (p *Pipeline) Run(ctx context.Context, root, pattern string, force bool) (*Report, error) {
	start := p.now()
	paths, err := convert.Walk(root, pattern)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "ingestion started", "root", root, "documents", len(paths))

	results := make([]DocumentResult, len(paths))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = p.IngestFile(ctx, root, path, force)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	for _, res := range results {
		report.add(res)
	}
	report.Duration = time.Since(start)
	slog.InfoContext(ctx, "ingestion finished",
		"documents", report.Documents,
		"completed", report.DocumentsOK,
		"partial", report.DocumentsPartial,
		"failed", report.DocumentsFailed,
		"skipped", report.DocumentsSkipped,
		"chunks_indexed", report.ChunksIndexed,
		"chunks_failed", report.ChunksFailed,
		"duration", report.Duration,
	)
	return report, ctx.Err()
}

// IngestFile converts the file at path and ingests it.
func (p *Pipeline) IngestFile(ctx context.Context, root, path string, force bool) DocumentResult {
	doc, err := p.loader.Load(ctx, root, path)
	if err != nil {
		id := path
		var ce *domain.ConversionError
		if errors.As(err, &ce) {
			id = ce.Path
		}
		slog.WarnContext(ctx, "skipping document", "path", path, "error", err)
		res := DocumentResult{DocumentID: id, Status: domain.DocumentStatusFailed, Err: err}
		p.record(ctx, domain.DocumentRecord{ID: id, Path: path, Status: domain.DocumentStatusFailed, Error: err.Error()})
		p.observe(res)
		return res
	}
	return p.IngestDocument(ctx, doc, force)
}

// IngestDocument segments, enriches and indexes an already converted document.
func (p *Pipeline) IngestDocument(ctx context.Context, doc domain.Document, force bool) DocumentResult {
	res := DocumentResult{DocumentID: doc.ID}
	if doc.ContentHash == "" {
		doc.ContentHash = convert.Hash(doc.Text)
	}

	if !force && p.unchanged(ctx, doc) {
		slog.InfoContext(ctx, "document unchanged, skipping", "document_id", doc.ID)
		res.Skipped = true
		res.Status = domain.DocumentStatusCompleted
		return res
	}

	rec := domain.DocumentRecord{
		ID:          doc.ID,
		Path:        doc.Path,
		ContentHash: doc.ContentHash,
		ContentType: doc.ContentType,
		PageCount:   doc.PageCount,
		Status:      domain.DocumentStatusProcessing,
	}
	p.record(ctx, rec)

	// Records carry a per-run generation so a fully successful run replaces
	// everything an earlier run wrote, even for identical content.
	revision := doc.ContentHash + "@" + uuid.NewString()

	chunks := slices.Collect(p.segmenter.Segment(doc))
	res.Chunks = len(chunks)
	res.SummaryErrors = p.summarizer.Enrich(ctx, doc, chunks)

	ir := p.indexer.Index(ctx, doc.ID, revision, chunks)
	res.Indexed = ir.Indexed
	res.Purged = ir.Purged
	res.Failed = ir.Failed

	switch {
	case len(ir.Failed) == 0 && ctx.Err() == nil:
		res.Status = domain.DocumentStatusCompleted
	case ir.Indexed > 0:
		res.Status = domain.DocumentStatusPartial
	default:
		res.Status = domain.DocumentStatusFailed
	}
	if ctx.Err() != nil && len(ir.Failed) == 0 {
		res.Err = ctx.Err()
	}

	for _, f := range ir.Failed {
		p.recordFailure(ctx, chunks, f, revision)
	}

	rec.ChunkCount = len(chunks)
	rec.FailedChunks = len(ir.Failed)
	rec.Status = res.Status
	if len(ir.Failed) > 0 {
		rec.Error = fmt.Sprintf("%d of %d chunks failed: %v", len(ir.Failed), len(chunks), ir.Failed[0])
	}
	p.record(ctx, rec)
	p.observe(res)

	slog.InfoContext(ctx, "document ingested",
		"document_id", doc.ID,
		"status", res.Status,
		"chunks", res.Chunks,
		"indexed", res.Indexed,
		"failed", len(res.Failed),
	)
	return res
}

func (p *Pipeline) unchanged(ctx context.Context, doc domain.Document) bool {
	if p.registry == nil {
		return false
	}
	prev, err := p.registry.Get(ctx, doc.ID)
	if err != nil {
		slog.WarnContext(ctx, "registry lookup failed", "document_id", doc.ID, "error", err)
		return false
	}
	return prev != nil && prev.ContentHash == doc.ContentHash && prev.Status == domain.DocumentStatusCompleted
}

func (p *Pipeline) record(ctx context.Context, rec domain.DocumentRecord) {
	if p.registry == nil {
		return
	}
	rec.UpdatedAt = p.now().UTC()
	if err := p.registry.Upsert(ctx, rec); err != nil {
		slog.WarnContext(ctx, "failed to update document registry", "document_id", rec.ID, "error", err)
	}
}

func (p *Pipeline) recordFailure(ctx context.Context, chunks []domain.Chunk, f *domain.IngestionError, revision string) {
	if p.failures == nil || f.Position < 0 || f.Position >= len(chunks) {
		return
	}
	task := ChunkTask{Chunk: chunks[f.Position], Revision: revision}
	if err := p.failures.RecordFailure(ctx, task, f); err != nil {
		slog.ErrorContext(ctx, "failed to record chunk failure", "chunk_id", f.ChunkID, "error", err)
	}
}

func (p *Pipeline) observe(res DocumentResult) {
	if p.observer == nil {
		return
	}
	if !res.Skipped {
		p.observer.DocumentIngested(res.Status)
	}
	p.observer.ChunksIndexed(res.Indexed, len(res.Failed))
}
