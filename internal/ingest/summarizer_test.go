package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
	"ragpipe/internal/llm"
	"ragpipe/internal/prompt"
)

func TestParseSummaryMode(t *testing.T) {
	m, err := ingest.ParseSummaryMode("Chunk")
	require.NoError(t, err)
	assert.Equal(t, ingest.SummaryChunk, m)

	m, err = ingest.ParseSummaryMode("")
	require.NoError(t, err)
	assert.Equal(t, ingest.SummaryOff, m)

	_, err = ingest.ParseSummaryMode("page")
	assert.Error(t, err)
}

func TestSummarizer_ChunkModeSkipsFailures(t *testing.T) {
	comp := &fakeCompleter{reply: func(p string) (string, error) {
		if strings.Contains(p, "unlucky") {
			return "", errors.New("quota exceeded")
		}
		return "  a summary  ", nil
	}}
	s := ingest.NewSummarizer(comp, prompt.Default(), ingest.SummaryChunk, llm.Options{}, ingest.RetryPolicy{Attempts: 1})

	doc := domain.Document{ID: "doc"}
	chunks := []domain.Chunk{chunk("doc", 0, "lucky text"), chunk("doc", 1, "unlucky text")}
	errs := s.Enrich(context.Background(), doc, chunks)

	require.Len(t, errs, 1)
	var ee *domain.EnrichmentError
	require.ErrorAs(t, errs[0], &ee)
	assert.Equal(t, chunks[1].ID, ee.ChunkID)
	assert.Equal(t, "a summary", chunks[0].Summary)
	assert.Empty(t, chunks[1].Summary)
}

func TestSummarizer_DocumentMode(t *testing.T) {
	comp := &fakeCompleter{reply: func(p string) (string, error) {
		return "Overview of the report.", nil
	}}
	s := ingest.NewSummarizer(comp, prompt.Default(), ingest.SummaryDocument, llm.Options{}, ingest.RetryPolicy{Attempts: 1})

	doc := domain.Document{ID: "doc", Text: "full text of the report"}
	chunks := []domain.Chunk{chunk("doc", 0, "a"), chunk("doc", 1, "b")}
	errs := s.Enrich(context.Background(), doc, chunks)

	assert.Empty(t, errs)
	require.Len(t, comp.prompt, 1)
	assert.Contains(t, comp.prompt[0], "full text of the report")
	for _, c := range chunks {
		assert.Equal(t, "Overview of the report.", c.Summary)
	}
}

func TestSummarizer_DocumentModeFailureDegrades(t *testing.T) {
	comp := &fakeCompleter{reply: func(string) (string, error) { return "", errors.New("down") }}
	s := ingest.NewSummarizer(comp, prompt.Default(), ingest.SummaryDocument, llm.Options{}, fastRetry())

	chunks := []domain.Chunk{chunk("doc", 0, "a")}
	errs := s.Enrich(context.Background(), domain.Document{ID: "doc", Text: "x"}, chunks)

	require.Len(t, errs, 1)
	assert.Equal(t, "summarize document doc: down", errs[0].Error())
	assert.Empty(t, chunks[0].Summary)
	assert.Len(t, comp.prompt, 3)
}

func TestSummarizer_EmptyReplyIsAnError(t *testing.T) {
	comp := &fakeCompleter{reply: func(string) (string, error) { return "   ", nil }}
	s := ingest.NewSummarizer(comp, prompt.Default(), ingest.SummaryChunk, llm.Options{}, ingest.RetryPolicy{Attempts: 1})

	_, err := s.SummarizeChunk(context.Background(), chunk("doc", 0, "a"))
	assert.ErrorContains(t, err, "empty summary")
}

func TestSummarizer_OffAndNil(t *testing.T) {
	var s *ingest.Summarizer
	assert.Equal(t, ingest.SummaryOff, s.Mode())
	assert.Nil(t, s.Enrich(context.Background(), domain.Document{}, nil))
}
