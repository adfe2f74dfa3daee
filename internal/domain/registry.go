package domain

import "time"

type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusPartial    DocumentStatus = "partial"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// DocumentRecord is the registry entry of one ingested source file.
type DocumentRecord struct {
	ID           string         `json:"id"`
	Path         string         `json:"path"`
	ContentHash  string         `json:"content_hash"`
	ContentType  string         `json:"content_type"`
	PageCount    int            `json:"page_count"`
	ChunkCount   int            `json:"chunk_count"`
	FailedChunks int            `json:"failed_chunks"`
	Status       DocumentStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
