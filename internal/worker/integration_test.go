package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
	"ragpipe/internal/testutils"
	"ragpipe/internal/worker"
)

type recordingIndexer struct {
	tasks chan ingest.ChunkTask
}

func (r *recordingIndexer) IndexChunk(ctx context.Context, task ingest.ChunkTask) error {
	r.tasks <- task
	return nil
}

func TestChunkTopicIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ix := &recordingIndexer{tasks: make(chan ingest.ChunkTask, 1)}

	consumer, err := nsq.NewConsumer(config.TopicIngestChunk, config.ChannelWorker, nsq.NewConfig())
	require.NoError(t, err)
	consumer.AddHandler(worker.NewChunkConsumer(ix, nil, 3))
	defer consumer.Stop()

	task := ingest.ChunkTask{
		Chunk:    domain.Chunk{ID: domain.ChunkID("wpp.md", 0), DocumentID: "wpp.md", Text: "Fertility fell."},
		Revision: "rev-1",
	}
	body, err := json.Marshal(task)
	require.NoError(t, err)
	require.NoError(t, s.NSQ.Publish(config.TopicIngestChunk, body))
	require.NoError(t, consumer.ConnectToNSQD(s.NSQDAddr))

	select {
	case got := <-ix.tasks:
		assert.Equal(t, task, got)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for chunk message")
	}
}
