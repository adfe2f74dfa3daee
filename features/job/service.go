package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ragpipe/internal/config"
	"ragpipe/internal/ingest"
)

var ErrNoPublisher = errors.New("no queue publisher configured")

const publishTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Record stores a failed unit of work. payload is JSON encoded and later
// republished unchanged to handler.
func (s *Service) Record(ctx context.Context, documentID, handler string, payload any, cause error) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	j := &Job{
		DocumentID: documentID,
		Handler:    handler,
		Payload:    body,
	}
	if cause != nil {
		j.Error = cause.Error()
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}
	slog.WarnContext(ctx, "failed job recorded", "job_id", j.ID, "document_id", documentID, "handler", handler, "error", j.Error)
	return j, nil
}

// RecordFailure keeps a chunk that exhausted its indexing retries.
func (s *Service) RecordFailure(ctx context.Context, task ingest.ChunkTask, cause error) error {
	_, err := s.Record(ctx, task.Chunk.DocumentID, config.TopicIngestChunk, task, cause)
	return err
}

// Retry republishes the job payload to its handler topic and removes the
// job once the queue accepted it.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !json.Valid(job.Payload) {
		return fmt.Errorf("job %s has an invalid payload", id)
	}
	if s.pub == nil {
		return ErrNoPublisher
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(job.Handler, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("publish job %s: %w", id, ctx.Err())
	}

	slog.InfoContext(ctx, "job retried", "job_id", id, "handler", job.Handler)
	return s.repo.Delete(ctx, id)
}

var _ ingest.FailureRecorder = (*Service)(nil)
