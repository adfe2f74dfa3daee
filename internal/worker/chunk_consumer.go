package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"ragpipe/internal/ingest"
	"ragpipe/internal/middleware"
)

// DefaultMaxAttempts is how often a chunk message is delivered before it is
// recorded as a failed job instead of being requeued.
const DefaultMaxAttempts = 5

type ChunkConsumer struct {
	indexer     ChunkIndexer
	failures    ingest.FailureRecorder
	maxAttempts uint16
}

func NewChunkConsumer(ix ChunkIndexer, failures ingest.FailureRecorder, maxAttempts int) *ChunkConsumer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &ChunkConsumer{
		indexer:     ix,
		failures:    failures,
		maxAttempts: uint16(maxAttempts), // #nosec G115 -- small positive config value
	}
}

func (h *ChunkConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IngestChunkPayload
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	if task.Chunk.ID == "" || task.Chunk.DocumentID == "" || task.Revision == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping", "chunk_id", task.Chunk.ID, "document_id", task.Chunk.DocumentID)
		return nil
	}

	err := h.indexer.IndexChunk(ctx, task)
	if err == nil {
		slog.InfoContext(ctx, "chunk stored successfully", "document_id", task.Chunk.DocumentID, "position", task.Chunk.Position)
		return nil
	}

	if m.Attempts < h.maxAttempts || h.failures == nil {
		slog.WarnContext(ctx, "chunk indexing failed, requeueing", "chunk_id", task.Chunk.ID, "attempt", m.Attempts, "error", err)
		return err // Retry
	}

	slog.ErrorContext(ctx, "chunk indexing failed permanently", "chunk_id", task.Chunk.ID, "attempts", m.Attempts, "error", err)
	if rerr := h.failures.RecordFailure(ctx, task, err); rerr != nil {
		slog.ErrorContext(ctx, "failed to record chunk failure", "chunk_id", task.Chunk.ID, "error", rerr)
		return err
	}
	return nil
}
