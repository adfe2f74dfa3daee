package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"ragpipe/features/document"
	"ragpipe/features/job"
	"ragpipe/features/mcp"
	"ragpipe/features/query"
	"ragpipe/features/stats"
	"ragpipe/internal/adapter/reranker"
	"ragpipe/internal/answer"
	"ragpipe/internal/config"
	"ragpipe/internal/convert"
	"ragpipe/internal/ingest"
	"ragpipe/internal/llm"
	"ragpipe/internal/metrics"
	"ragpipe/internal/middleware"
	"ragpipe/internal/orchestrator"
	"ragpipe/internal/prompt"
	"ragpipe/internal/retrieval"
	"ragpipe/internal/text"
	"ragpipe/internal/tokens"
	"ragpipe/internal/vector"
	"ragpipe/internal/worker"
)

var ErrQueueDisabled = errors.New("queue is not configured: set NSQD_HOST")

type App struct {
	Config       *config.Config
	Handler      http.Handler
	Metrics      *metrics.Metrics
	Pipeline     *ingest.Pipeline
	Retriever    *retrieval.Service
	Orchestrator *orchestrator.Orchestrator
	// Publisher is the nsq producer, or an in-process publisher when no
	// queue is configured.
	Publisher worker.TaskPublisher
	// Documents and Jobs are nil unless the document registry is enabled.
	Documents *document.Service
	Jobs      *job.Service

	documentConsumer *worker.DocumentConsumer
	chunkConsumer    *worker.ChunkConsumer
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	m := metrics.New()

	prompts := prompt.Default()
	if cfg.PromptTemplatesPath != "" {
		p, err := prompt.Load(cfg.PromptTemplatesPath)
		if err != nil {
			return nil, fmt.Errorf("prompt templates: %w", err)
		}
		prompts = p
	}

	counter, err := tokens.New(cfg.BudgetUnit, cfg.TokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("token counter: %w", err)
	}

	seg, err := text.NewSegmenter(text.Config{
		TargetSize: cfg.ChunkSize,
		Overlap:    cfg.ChunkOverlap,
		Tolerance:  cfg.ChunkTolerance,
		Boundary:   text.Boundary(cfg.ChunkBoundary),
	})
	if err != nil {
		return nil, err
	}

	mode, err := ingest.ParseSummaryMode(cfg.SummaryMode)
	if err != nil {
		return nil, err
	}
	policy := ingest.RetryPolicy{
		Attempts:    cfg.RetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		CallTimeout: cfg.CallTimeout,
	}
	genOpts := llm.Options{Temperature: cfg.Temperature, MaxOutputTokens: cfg.MaxOutputTokens}

	summarizer := ingest.NewSummarizer(deps.LLM, prompts, mode, genOpts, policy)
	indexer := ingest.NewIndexer(deps.LLM, deps.VectorStore, ingest.IndexerConfig{
		Concurrency:   cfg.ChunkConcurrency,
		RatePerSecond: cfg.EmbedRatePerSecond,
		SummaryMode:   mode,
		Retry:         policy,
	})

	a := &App{Config: cfg, Metrics: m}

	pipelineOpts := []ingest.Option{
		ingest.WithObserver(m),
		ingest.WithDocumentConcurrency(cfg.DocumentConcurrency),
	}
	var documentRepo *document.PostgresRepo
	var jobRepo *job.PostgresRepo
	if deps.DB != nil {
		documentRepo = document.NewPostgresRepo(deps.DB)
		jobRepo = job.NewPostgresRepo(deps.DB)
		a.Documents = document.NewService(documentRepo, deps.VectorStore)
		pipelineOpts = append(pipelineOpts, ingest.WithRegistry(documentRepo))
	}

	// Jobs need the publisher and the pipeline needs the job recorder, so
	// the publisher is settled first.
	var local *worker.LocalPublisher
	if deps.NSQProducer != nil {
		a.Publisher = deps.NSQProducer
	} else {
		local = worker.NewLocalPublisher()
		a.Publisher = local
	}
	var failures ingest.FailureRecorder
	if jobRepo != nil {
		a.Jobs = job.NewService(jobRepo, a.Publisher)
		failures = a.Jobs
		pipelineOpts = append(pipelineOpts, ingest.WithFailureRecorder(a.Jobs))
	}

	a.Pipeline = ingest.NewPipeline(convert.NewRegistry(), seg, summarizer, indexer, pipelineOpts...)
	a.documentConsumer = worker.NewDocumentConsumer(a.Pipeline)
	a.chunkConsumer = worker.NewChunkConsumer(a.Pipeline.Indexer(), failures, worker.DefaultMaxAttempts)
	if local != nil {
		local.Register(config.TopicIngestDocument, a.documentConsumer)
		local.Register(config.TopicIngestChunk, a.chunkConsumer)
	}

	var rr retrieval.Reranker
	if cfg.RerankProvider != "none" {
		rr = reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey, cfg.CallTimeout)
	}
	// query path calls run on the caller's context, so bound them here
	queryEmbedder := llm.WithEmbedTimeout(deps.LLM, cfg.CallTimeout)
	queryStore := vector.WithTimeout(deps.VectorStore, cfg.CallTimeout)
	completer := llm.WithCompleteTimeout(deps.LLM, cfg.CallTimeout)

	a.Retriever, err = retrieval.NewService(queryEmbedder, queryStore, rr, openQueryLogger(cfg.QueryLogPath), retrieval.Config{
		DefaultK:         cfg.RetrievalTopK,
		CacheSize:        cfg.QueryCacheSize,
		RerankCandidates: cfg.RerankCandidates,
		Alpha:            cfg.SearchAlpha,
	})
	if err != nil {
		return nil, fmt.Errorf("retriever: %w", err)
	}

	composer := answer.NewComposer(completer, prompts, counter, answer.Config{Budget: cfg.ContextBudget, Options: genOpts})

	var triager orchestrator.Classifier
	if cfg.TriageEnabled {
		triager = orchestrator.NewTriager(completer, prompts, cfg.TriageScope, llm.Options{MaxOutputTokens: 16})
	}
	a.Orchestrator = orchestrator.New(a.Retriever, composer, triager, m)

	a.Handler = a.routes(documentRepo, jobRepo)
	return a, nil
}

func openQueryLogger(path string) *retrieval.QueryLogger {
	if path == "" {
		return retrieval.NewQueryLogger(os.Stderr)
	}
	l, err := retrieval.NewFileQueryLogger(path)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stderr", "error", err)
		return retrieval.NewQueryLogger(os.Stderr)
	}
	return l
}

func (a *App) routes(documentRepo *document.PostgresRepo, jobRepo *job.PostgresRepo) http.Handler {
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	queryHandler := query.NewHandler(a.Orchestrator, a.Retriever)
	mux.Handle("POST /query", middleware.CorrelationID(enableCORS(queryHandler.Ask)))
	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(queryHandler.Search)))

	var lister mcp.DocumentLister
	if a.Documents != nil {
		lister = a.Documents

		documentHandler := document.NewHandler(a.Documents)
		mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
		mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))

		jobHandler := job.NewHandler(a.Jobs)
		mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
		mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

		statsHandler := stats.NewHandler(documentRepo, jobRepo)
		mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))
	}

	mcpHandler := mcp.NewHandler(a.Orchestrator, a.Retriever, lister)
	mux.Handle("/mcp", middleware.CorrelationID(mcpHandler))
	mux.Handle("GET /mcp/sse", middleware.CorrelationID(enableCORS(mcpHandler.HandleSSE)))
	mux.Handle("POST /mcp/messages", middleware.CorrelationID(enableCORS(mcpHandler.HandleMessage)))

	mux.Handle("GET /metrics", a.Metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			slog.Warn("failed to write health response", "error", err)
		}
	})
	return mux
}

// Ingest runs the pipeline over root in this process.
func (a *App) Ingest(ctx context.Context, root, pattern string, force bool) (*ingest.Report, error) {
	if pattern == "" {
		pattern = a.Config.SourcePattern
	}
	return a.Pipeline.Run(ctx, root, pattern, force)
}

// Enqueue publishes one ingest message per matching file under root. Without
// a queue the messages are handled before Enqueue returns.
func (a *App) Enqueue(ctx context.Context, root, pattern string, force bool) (int, error) {
	if pattern == "" {
		pattern = a.Config.SourcePattern
	}
	return worker.EnqueueDocuments(ctx, a.Publisher, root, pattern, force)
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.Config.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunWorkers consumes both ingest topics from nsq until ctx is done.
func (a *App) RunWorkers(ctx context.Context) error {
	if !a.Config.QueueEnabled() {
		return ErrQueueDisabled
	}

	handlers := map[string]nsq.Handler{
		config.TopicIngestDocument: a.documentConsumer,
		config.TopicIngestChunk:    a.chunkConsumer,
	}
	consumers := make([]*nsq.Consumer, 0, len(handlers))
	stopAll := func() {
		for _, c := range consumers {
			c.Stop()
		}
		for _, c := range consumers {
			<-c.StopChan
		}
	}

	for topic, h := range handlers {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxInFlight = a.Config.WorkerConcurrency
		nsqCfg.MaxAttempts = uint16(worker.DefaultMaxAttempts) // #nosec G115 -- small constant
		c, err := nsq.NewConsumer(topic, config.ChannelWorker, nsqCfg)
		if err != nil {
			stopAll()
			return fmt.Errorf("nsq consumer %s: %w", topic, err)
		}
		c.AddConcurrentHandlers(h, a.Config.WorkerConcurrency)
		if err := c.ConnectToNSQLookupd(a.Config.NSQLookupd); err != nil {
			c.Stop()
			stopAll()
			return fmt.Errorf("failed to connect to NSQLookupd: %w", err)
		}
		slog.Info("NSQ consumer connected", "topic", topic, "channel", config.ChannelWorker)
		consumers = append(consumers, c)
	}

	<-ctx.Done()
	slog.Info("stopping workers...")
	stopAll()
	return nil
}
