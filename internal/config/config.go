package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

const defaultChunkTolerance = 100

type Config struct {
	// Chunking
	ChunkSize      int    `envconfig:"CHUNK_SIZE" default:"1000" validate:"gt=0"`
	ChunkOverlap   int    `envconfig:"CHUNK_OVERLAP" default:"100" validate:"gte=0,ltfield=ChunkSize"`
	ChunkTolerance int    `envconfig:"CHUNK_TOLERANCE" validate:"gte=0,ltefield=ChunkOverlap"`
	ChunkBoundary  string `envconfig:"CHUNK_BOUNDARY" default:"paragraph" validate:"oneof=paragraph sentence none"`
	SourcePattern  string `envconfig:"SOURCE_PATTERN" default:"**/*.{pdf,md,markdown,txt}"`

	// Enrichment: off, chunk (one summary record per chunk) or document
	// (document summary prepended to every chunk before embedding).
	SummaryMode string `envconfig:"SUMMARY_MODE" default:"off" validate:"oneof=off chunk document"`

	// Retrieval
	RetrievalTopK    int    `envconfig:"RETRIEVAL_TOP_K" default:"5" validate:"gt=0"`
	QueryCacheSize   int    `envconfig:"QUERY_CACHE_SIZE" default:"256" validate:"gte=0"`
	RerankProvider   string `envconfig:"RERANK_PROVIDER" default:"none" validate:"oneof=none jina cohere"`
	RerankAPIKey     string `envconfig:"RERANK_API_KEY"`
	RerankCandidates int    `envconfig:"RERANK_CANDIDATES" default:"25" validate:"gt=0"`
	// SearchAlpha below 1 blends keyword scoring into the weaviate search.
	SearchAlpha float32 `envconfig:"SEARCH_ALPHA" default:"1" validate:"gt=0,lte=1"`

	// Answer composition
	ContextBudget int    `envconfig:"CONTEXT_BUDGET" default:"6000" validate:"gt=0"`
	BudgetUnit    string `envconfig:"BUDGET_UNIT" default:"chars" validate:"oneof=chars tokens"`
	TokenEncoding string `envconfig:"TOKEN_ENCODING" default:"cl100k_base"`

	// Triage
	TriageEnabled bool   `envconfig:"TRIAGE_ENABLED" default:"false"`
	TriageScope   string `envconfig:"TRIAGE_SCOPE" default:"demography, population, or the World Population Prospects published by the United Nations"`

	// LLM and embeddings
	LLMProvider     string  `envconfig:"LLM_PROVIDER" default:"gemini" validate:"oneof=gemini ollama"`
	GeminiAPIKey    string  `envconfig:"GEMINI_API_KEY"`
	OllamaHost      string  `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	EmbeddingModel  string  `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	CompletionModel string  `envconfig:"COMPLETION_MODEL" default:"gemini-2.5-flash"`
	Temperature     float32 `envconfig:"TEMPERATURE" default:"0" validate:"gte=0,lte=2"`
	MaxOutputTokens int     `envconfig:"MAX_OUTPUT_TOKENS" default:"1024" validate:"gt=0"`

	// Timeout applied to each embedding, completion and vector store call
	CallTimeout time.Duration `envconfig:"CALL_TIMEOUT" default:"60s"`

	// Vector store
	VectorBackend      string `envconfig:"VECTOR_BACKEND" default:"weaviate" validate:"oneof=weaviate qdrant memory"`
	WeaviateHost       string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme     string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateClass      string `envconfig:"WEAVIATE_CLASS" default:"DocumentChunk"`
	QdrantHost         string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort         int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey       string `envconfig:"QDRANT_API_KEY"`
	QdrantCollection   string `envconfig:"QDRANT_COLLECTION" default:"document_chunks"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"3072" validate:"gt=0"`

	// Ingestion
	DocumentConcurrency int           `envconfig:"INGEST_DOCUMENT_CONCURRENCY" default:"4" validate:"gt=0"`
	ChunkConcurrency    int           `envconfig:"INGEST_CHUNK_CONCURRENCY" default:"8" validate:"gt=0"`
	EmbedRatePerSecond  float64       `envconfig:"EMBED_RATE_PER_SECOND" default:"0" validate:"gte=0"`
	RetryAttempts       int           `envconfig:"RETRY_ATTEMPTS" default:"3" validate:"gt=0"`
	RetryBaseDelay      time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`

	// Document registry
	EnableRegistry bool   `envconfig:"ENABLE_REGISTRY" default:"false"`
	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"ragpipe"`
	DBPass         string `envconfig:"DB_PASS" default:"password"`
	DBName         string `envconfig:"DB_NAME" default:"ragpipe"`
	MigrationPath  string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Queue
	NSQDHost          string `envconfig:"NSQD_HOST"`
	NSQDHTTP          string `envconfig:"NSQD_HTTP"`
	NSQLookupd        string `envconfig:"NSQ_LOOKUPD" default:"localhost:4161"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"4" validate:"gt=0"`

	// Server
	ServerPort          int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath        string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	PromptTemplatesPath string `envconfig:"PROMPT_TEMPLATES_PATH"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

var validate = validator.New()

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if _, set := os.LookupEnv("CHUNK_TOLERANCE"); !set {
		cfg.ChunkTolerance = min(defaultChunkTolerance, cfg.ChunkOverlap)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return err
	}
	if c.LLMProvider == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
	}
	if c.RerankProvider != "none" && c.RerankAPIKey == "" {
		return fmt.Errorf("%w: RERANK_API_KEY", ErrMissingRequired)
	}
	if c.EnableRegistry {
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	return nil
}

// DSN builds the postgres connection string for the document registry.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

// QueueEnabled reports whether an nsqd producer address is configured.
func (c *Config) QueueEnabled() bool {
	return c.NSQDHost != ""
}
