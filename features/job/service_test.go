package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragpipe/features/job"
	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
)

func TestService_RecordFailure(t *testing.T) {
	repo := new(MockRepo)
	svc := job.NewService(repo, nil)

	task := ingest.ChunkTask{
		Chunk:    domain.Chunk{ID: "c-1", DocumentID: "wpp.pdf", Position: 3, Text: "Fertility fell."},
		Revision: "rev-1",
	}

	var saved *job.Job
	repo.On("Save", mock.Anything, mock.AnythingOfType("*job.Job")).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*job.Job)
		saved.ID = "job-9"
	}).Return(nil)

	err := svc.RecordFailure(context.Background(), task, errors.New("embedding quota exceeded"))
	require.NoError(t, err)
	require.NotNil(t, saved)

	assert.Equal(t, "wpp.pdf", saved.DocumentID)
	assert.Equal(t, config.TopicIngestChunk, saved.Handler)
	assert.Equal(t, "embedding quota exceeded", saved.Error)

	var decoded ingest.ChunkTask
	require.NoError(t, json.Unmarshal(saved.Payload, &decoded))
	assert.Equal(t, task, decoded)
}

func TestService_RecordFailure_SaveError(t *testing.T) {
	repo := new(MockRepo)
	svc := job.NewService(repo, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))

	err := svc.RecordFailure(context.Background(), ingest.ChunkTask{}, errors.New("boom"))
	assert.EqualError(t, err, "db down")
}

func TestService_Retry_ContextCancellation(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := job.NewService(repo, pub)

	repo.On("Get", mock.Anything, "slow").Return(&job.Job{ID: "slow", Handler: config.TopicIngestChunk, Payload: []byte(`{}`)}, nil)
	pub.On("Publish", config.TopicIngestChunk, mock.Anything).Run(func(args mock.Arguments) {
		time.Sleep(100 * time.Millisecond)
	}).Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := svc.Retry(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestService_Retry_InvalidPayload(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := job.NewService(repo, pub)

	repo.On("Get", mock.Anything, "bad").Return(&job.Job{ID: "bad", Payload: []byte(`{invalid-json}`)}, nil)

	err := svc.Retry(context.Background(), "bad")
	assert.ErrorContains(t, err, "invalid payload")
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestService_Retry_DeleteError(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := job.NewService(repo, pub)

	repo.On("Get", mock.Anything, "j").Return(&job.Job{ID: "j", Handler: config.TopicIngestChunk, Payload: []byte(`{}`)}, nil)
	pub.On("Publish", config.TopicIngestChunk, mock.Anything).Return(nil)
	repo.On("Delete", mock.Anything, "j").Return(errors.New("delete failed"))

	err := svc.Retry(context.Background(), "j")
	assert.EqualError(t, err, "delete failed")
}

func TestService_Count(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Count", mock.Anything).Return(10, nil)

	count, err := job.NewService(repo, nil).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}
