package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrInvalidK   = errors.New("k must be a positive integer")
)

// ConversionError means a source document could not be turned into text.
// Ingestion skips the document and continues with the others.
type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// EnrichmentError means summary generation failed for a chunk or document.
type EnrichmentError struct {
	DocumentID string
	ChunkID    string
	Err        error
}

func (e *EnrichmentError) Error() string {
	if e.ChunkID == "" {
		return fmt.Sprintf("summarize document %s: %v", e.DocumentID, e.Err)
	}
	return fmt.Sprintf("summarize chunk %s of %s: %v", e.ChunkID, e.DocumentID, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// IngestionError names the chunk whose embedding or store write failed after retries.
type IngestionError struct {
	DocumentID string
	ChunkID    string
	Position   int
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("index chunk %d (%s) of %s: %v", e.Position, e.ChunkID, e.DocumentID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

type RetrievalError struct {
	Stage string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed while %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError keeps the prompt that was sent so the caller can retry the
// completion without repeating retrieval.
type GenerationError struct {
	Prompt   string
	ChunkIDs []string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
