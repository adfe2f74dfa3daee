package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk identifiers so that re-ingesting a
// document produces the same ids for the same positions.
var chunkNamespace = uuid.MustParse("6f1c9a52-3b8e-4d0a-9a77-2f4c1e8b5d10")

type Document struct {
	ID          string
	Path        string
	Text        string
	ContentType string
	PageCount   int
	ContentHash string
	ConvertedAt time.Time
}

type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Position   int    `json:"position"`
	Start      int    `json:"start"` // rune offset, inclusive
	End        int    `json:"end"`   // rune offset, exclusive
	Text       string `json:"text"`
	Summary    string `json:"summary,omitempty"`
}

// Len returns the chunk length in characters.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// ChunkID derives the stable identifier of the chunk at position within a document.
func ChunkID(documentID string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"#"+strconv.Itoa(position))).String()
}

// SummaryRecordID derives the record id used for a chunk's summary embedding.
func SummaryRecordID(chunkID string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(chunkID+"#summary")).String()
}

type RecordKind string

const (
	RecordKindBody    RecordKind = "body"
	RecordKindSummary RecordKind = "summary"
)

type ScoredChunk struct {
	Chunk Chunk
	Score float32
	Kind  RecordKind
}

// RetrievalResult is ordered most relevant first.
type RetrievalResult []ScoredChunk

type Answer struct {
	Query      string   `json:"query"`
	Text       string   `json:"answer"`
	ChunkIDs   []string `json:"chunk_ids"`
	NoContext  bool     `json:"no_context,omitempty"`
	OutOfScope bool     `json:"out_of_scope,omitempty"`
}
