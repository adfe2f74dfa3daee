package job

import (
	"encoding/json"
	"time"
)

// Job is a unit of ingestion work that failed after its retries ran out.
// Handler is the queue topic the payload is republished to on retry.
type Job struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Handler    string          `json:"handler"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Retries    int             `json:"retries"`
	CreatedAt  time.Time       `json:"created_at"`
}
