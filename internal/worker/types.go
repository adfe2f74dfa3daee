package worker

import (
	"context"

	"ragpipe/internal/ingest"
)

type DocumentIngester interface {
	IngestFile(ctx context.Context, root, path string, force bool) ingest.DocumentResult
}

type ChunkIndexer interface {
	IndexChunk(ctx context.Context, task ingest.ChunkTask) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
