package worker

import "ragpipe/internal/ingest"

// IngestDocumentPayload asks a worker to convert and ingest one file.
// Path is relative to Root.
type IngestDocumentPayload struct {
	Root          string `json:"root"`
	Path          string `json:"path"`
	Force         bool   `json:"force,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// IngestChunkPayload asks a worker to embed and store one chunk.
type IngestChunkPayload = ingest.ChunkTask
