package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"ragpipe/internal/domain"
	"ragpipe/internal/middleware"
)

// DocumentConsumer ingests one source file per message. Chunk level
// failures are recorded by the pipeline; only interrupted ingestion is
// requeued.
type DocumentConsumer struct {
	ingester DocumentIngester
}

func NewDocumentConsumer(i DocumentIngester) *DocumentConsumer {
	return &DocumentConsumer{ingester: i}
}

func (h *DocumentConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestDocumentPayload
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}
	if payload.Root == "" || payload.Path == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping", "root", payload.Root, "path", payload.Path)
		return nil
	}

	res := h.ingester.IngestFile(ctx, payload.Root, payload.Path, payload.Force)

	var ce *domain.ConversionError
	switch {
	case res.Err == nil:
		return nil
	case errors.As(res.Err, &ce):
		// the registry keeps the failure; converting again will not help
		return nil
	default:
		slog.WarnContext(ctx, "document ingestion interrupted, requeueing", "path", payload.Path, "error", res.Err)
		return res.Err
	}
}
