package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ragpipe/internal/ingest"
)

// Mocks

type MockIndexer struct{ mock.Mock }

func (m *MockIndexer) IndexChunk(ctx context.Context, task ingest.ChunkTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type MockIngester struct{ mock.Mock }

func (m *MockIngester) IngestFile(ctx context.Context, root, path string, force bool) ingest.DocumentResult {
	args := m.Called(ctx, root, path, force)
	return args.Get(0).(ingest.DocumentResult)
}

type MockRecorder struct{ mock.Mock }

func (m *MockRecorder) RecordFailure(ctx context.Context, task ingest.ChunkTask, cause error) error {
	args := m.Called(ctx, task, cause)
	return args.Error(0)
}

type MockTaskPublisher struct{ mock.Mock }

func (m *MockTaskPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}
