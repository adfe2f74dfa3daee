package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"ragpipe/internal/adapter/gemini"
	"ragpipe/internal/adapter/memory"
	"ragpipe/internal/adapter/ollama"
	"ragpipe/internal/adapter/qdrant"
	wstore "ragpipe/internal/adapter/weaviate"
	"ragpipe/internal/config"
	"ragpipe/internal/llm"
	"ragpipe/internal/vector"
)

// LLM is a provider that both embeds and completes.
type LLM interface {
	llm.Embedder
	llm.Completer
	Close() error
}

// SchemaEnsurer is the part of a vector store bootstrap needs.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

type Dependencies struct {
	// DB is nil unless the document registry is enabled.
	DB          *sql.DB
	VectorStore vector.Store
	LLM         LLM
	// NSQProducer is nil unless a queue is configured.
	NSQProducer *nsq.Producer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	if cfg.EnableRegistry {
		db, err := OpenDatabase(ctx, cfg, retryDelay)
		if err != nil {
			return nil, err
		}
		deps.DB = db
	}

	store, err := OpenVectorStore(cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.VectorStore = store
	if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		deps.Close()
		return nil, fmt.Errorf("%s schema error: %w", cfg.VectorBackend, err)
	}

	provider, err := OpenLLM(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.LLM = provider

	if cfg.QueueEnabled() {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
		if cfg.NSQDHTTP != "" {
			createTopics(ctx, cfg.NSQDHTTP)
		}
	}

	slog.InfoContext(ctx, "dependencies ready",
		"vector_backend", cfg.VectorBackend,
		"llm_provider", cfg.LLMProvider,
		"registry", cfg.EnableRegistry,
		"queue", cfg.QueueEnabled(),
	)
	return deps, nil
}

// Close releases every opened dependency. It is safe on partial results.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.LLM != nil {
		if err := d.LLM.Close(); err != nil {
			slog.Warn("failed to close llm client", "error", err)
		}
	}
	if d.VectorStore != nil {
		if err := d.VectorStore.Close(); err != nil {
			slog.Warn("failed to close vector store", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}
}

// OpenDatabase connects to postgres, waiting for it to come up, and applies
// migrations.
func OpenDatabase(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		if err := sleep(ctx, retryDelay); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}

func OpenVectorStore(cfg *config.Config) (vector.Store, error) {
	switch cfg.VectorBackend {
	case "memory":
		return memory.NewStore(cfg.EmbeddingDimension), nil
	case "qdrant":
		s, err := qdrant.Dial(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("qdrant client error: %w", err)
		}
		return s, nil
	case "weaviate", "":
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		return wstore.NewStore(client, cfg.WeaviateClass), nil
	}
	return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
}

func OpenLLM(ctx context.Context, cfg *config.Config) (LLM, error) {
	switch cfg.LLMProvider {
	case "ollama":
		c, err := ollama.NewClient(cfg.OllamaHost, cfg.EmbeddingModel, cfg.CompletionModel, cfg.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("ollama client error: %w", err)
		}
		return c, nil
	case "gemini", "":
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.CompletionModel)
		if err != nil {
			return nil, fmt.Errorf("gemini client error: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}

func createTopics(ctx context.Context, nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return
		}
		resp, err := http.DefaultClient.Do(req) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		create(config.TopicIngestDocument)
		create(config.TopicIngestChunk)
	}()
}

// EnsureSchemaWithRetry delegates schema check to a helper with retry logic.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		slog.WarnContext(ctx, "failed to ensure vector schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			if serr := sleep(ctx, delay); serr != nil {
				return serr
			}
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
