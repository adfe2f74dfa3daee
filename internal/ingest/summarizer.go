package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ragpipe/internal/domain"
	"ragpipe/internal/llm"
	"ragpipe/internal/prompt"
)

type SummaryMode string

const (
	SummaryOff      SummaryMode = "off"
	SummaryChunk    SummaryMode = "chunk"
	SummaryDocument SummaryMode = "document"
)

func ParseSummaryMode(s string) (SummaryMode, error) {
	switch m := SummaryMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SummaryOff, SummaryChunk, SummaryDocument:
		return m, nil
	case "":
		return SummaryOff, nil
	default:
		return "", fmt.Errorf("unknown summary mode %q", s)
	}
}

// Summarizer produces short synthetic summaries through the completion
// service. In chunk mode every chunk gets its own summary; in document mode
// one summary of the whole document is attached to every chunk.
type Summarizer struct {
	completer llm.Completer
	prompts   *prompt.Set
	mode      SummaryMode
	opts      llm.Options
	retry     RetryPolicy
}

func NewSummarizer(c llm.Completer, prompts *prompt.Set, mode SummaryMode, opts llm.Options, policy RetryPolicy) *Summarizer {
	return &Summarizer{completer: c, prompts: prompts, mode: mode, opts: opts, retry: policy}
}

func (s *Summarizer) Mode() SummaryMode {
	if s == nil {
		return SummaryOff
	}
	return s.mode
}

// SummarizeChunk returns a summary of one chunk or an EnrichmentError.
func (s *Summarizer) SummarizeChunk(ctx context.Context, c domain.Chunk) (string, error) {
	out, err := s.complete(ctx, prompt.ChunkSummary, prompt.SummaryData{DocumentID: c.DocumentID, Text: c.Text})
	if err != nil {
		return "", &domain.EnrichmentError{DocumentID: c.DocumentID, ChunkID: c.ID, Err: err}
	}
	return out, nil
}

// SummarizeDocument returns a summary of the whole document or an EnrichmentError.
func (s *Summarizer) SummarizeDocument(ctx context.Context, doc domain.Document) (string, error) {
	out, err := s.complete(ctx, prompt.DocumentSummary, prompt.SummaryData{DocumentID: doc.ID, Text: doc.Text})
	if err != nil {
		return "", &domain.EnrichmentError{DocumentID: doc.ID, Err: err}
	}
	return out, nil
}

func (s *Summarizer) complete(ctx context.Context, name string, data prompt.SummaryData) (string, error) {
	p, err := s.prompts.Render(name, data)
	if err != nil {
		return "", err
	}
	opts := s.opts
	opts.System = p.System
	out, err := do(ctx, s.retry, func(ctx context.Context) (string, error) {
		return s.completer.Complete(ctx, p.User, opts)
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty summary")
	}
	return out, nil
}

// Enrich fills the Summary field of chunks according to the configured mode.
// Failures are logged and returned, and the affected chunks keep an empty
// summary.
func (s *Summarizer) Enrich(ctx context.Context, doc domain.Document, chunks []domain.Chunk) []error {
	switch s.Mode() {
	case SummaryChunk:
		var errs []error
		for i := range chunks {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				return errs
			}
			sum, err := s.SummarizeChunk(ctx, chunks[i])
			if err != nil {
				slog.WarnContext(ctx, "skipping chunk summary", "document_id", doc.ID, "chunk_id", chunks[i].ID, "error", err)
				errs = append(errs, err)
				continue
			}
			chunks[i].Summary = sum
		}
		return errs
	case SummaryDocument:
		sum, err := s.SummarizeDocument(ctx, doc)
		if err != nil {
			slog.WarnContext(ctx, "skipping document summary", "document_id", doc.ID, "error", err)
			return []error{err}
		}
		for i := range chunks {
			chunks[i].Summary = sum
		}
	}
	return nil
}
