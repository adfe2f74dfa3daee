package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"ragpipe/internal/config"
	"ragpipe/internal/convert"
	"ragpipe/internal/middleware"
)

// EnqueueDocuments publishes one ingest message per file under root that
// matches pattern and returns how many were published.
func EnqueueDocuments(ctx context.Context, pub TaskPublisher, root, pattern string, force bool) (int, error) {
	paths, err := convert.Walk(root, pattern)
	if err != nil {
		return 0, err
	}
	ctx = middleware.EnsureCorrelationID(ctx)
	correlationID := middleware.GetCorrelationID(ctx)

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		body, err := json.Marshal(IngestDocumentPayload{
			Root:          root,
			Path:          path,
			Force:         force,
			CorrelationID: correlationID,
		})
		if err != nil {
			return i, err
		}
		if err := pub.Publish(config.TopicIngestDocument, body); err != nil {
			return i, fmt.Errorf("publish %s: %w", path, err)
		}
	}
	slog.InfoContext(ctx, "documents enqueued", "root", root, "count", len(paths))
	return len(paths), nil
}
