package config

const (
	// TopicIngestDocument carries one source file to convert, segment and index.
	TopicIngestDocument = "ingest.document"

	// TopicIngestChunk carries one chunk to embed and store (failed chunk retries).
	TopicIngestChunk = "ingest.chunk"

	// ChannelWorker is the consumer channel shared by ingestion workers.
	ChannelWorker = "worker"
)
