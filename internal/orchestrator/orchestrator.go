package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ragpipe/internal/answer"
	"ragpipe/internal/domain"
	"ragpipe/internal/metrics"
	"ragpipe/internal/middleware"
	"ragpipe/internal/prompt"
)

type State string

const (
	StateIdle             State = "idle"
	StateTriaging         State = "triaging"
	StateEmbeddingQuery   State = "embedding_query"
	StateRetrieving       State = "retrieving"
	StateComposingContext State = "composing_context"
	StateGeneratingAnswer State = "generating_answer"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

type Retriever interface {
	ResolveK(k int) (int, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Search(ctx context.Context, query string, vec []float32, k int) (domain.RetrievalResult, error)
}

type Composer interface {
	Assemble(results domain.RetrievalResult) answer.Context
	Render(query string, cc answer.Context) (prompt.Rendered, error)
	Generate(ctx context.Context, p prompt.Rendered, chunkIDs []string) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, query string) (Label, error)
}

// Run is the state of one query. Nothing in it is shared with other runs.
type Run struct {
	Query   string
	K       int
	State   State
	History []State
	// FailedIn is the state that produced Err.
	FailedIn State
	Err      error

	Label   Label
	Vector  []float32
	Results domain.RetrievalResult
	Context answer.Context
	Prompt  prompt.Rendered
	Answer  domain.Answer
}

func (r *Run) enter(s State) {
	r.State = s
	r.History = append(r.History, s)
}

// Orchestrator drives a query through triage, retrieval, context assembly
// and generation.
type Orchestrator struct {
	retriever Retriever
	composer  Composer
	triager   Classifier
	metrics   *metrics.Metrics
}

// New builds an orchestrator. triager and m may be nil.
func New(r Retriever, c Composer, triager Classifier, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{retriever: r, composer: c, triager: triager, metrics: m}
}

// Answer runs query to completion and returns its answer.
func (o *Orchestrator) Answer(ctx context.Context, query string, k int) (domain.Answer, error) {
	run := o.Run(ctx, query, k)
	if run.State == StateFailed {
		return domain.Answer{}, run.Err
	}
	return run.Answer, nil
}

// Run executes the state machine for one query and returns the final run,
// which is either Done or Failed.
func (o *Orchestrator) Run(ctx context.Context, query string, k int) *Run {
	ctx = middleware.EnsureCorrelationID(ctx)
	start := time.Now()
	run := &Run{Query: query, K: k}
	run.enter(StateIdle)
	if err := o.admit(run); err != nil {
		o.fail(run, err)
		o.finish(ctx, run, start)
		return run
	}

	next := StateEmbeddingQuery
	if o.triager != nil {
		next = StateTriaging
	}
	o.drive(ctx, run, next)
	o.finish(ctx, run, start)
	return run
}

// admit rejects a query that no state could answer, before any service is
// called.
func (o *Orchestrator) admit(run *Run) error {
	if strings.TrimSpace(run.Query) == "" {
		return domain.ErrEmptyQuery
	}
	k, err := o.retriever.ResolveK(run.K)
	if err != nil {
		return err
	}
	run.K = k
	return nil
}

// RetryGeneration repeats the completion call of a run that failed while
// generating, reusing its retrieved context and prompt.
func (o *Orchestrator) RetryGeneration(ctx context.Context, run *Run) error {
	if run.State != StateFailed || run.FailedIn != StateGeneratingAnswer {
		return fmt.Errorf("run in state %s failed in %q, nothing to retry", run.State, run.FailedIn)
	}
	start := time.Now()
	run.Err = nil
	run.FailedIn = ""
	o.drive(ctx, run, StateGeneratingAnswer)
	o.finish(ctx, run, start)
	return run.Err
}

func (o *Orchestrator) drive(ctx context.Context, run *Run, next State) {
	for next != StateDone && next != StateFailed {
		run.enter(next)
		if err := ctx.Err(); err != nil {
			o.fail(run, err)
			return
		}
		var err error
		next, err = o.step(ctx, run)
		if err != nil {
			o.fail(run, err)
			return
		}
	}
	run.enter(next)
}

func (o *Orchestrator) fail(run *Run, err error) {
	run.FailedIn = run.State
	run.Err = err
	run.enter(StateFailed)
}

func (o *Orchestrator) step(ctx context.Context, run *Run) (State, error) {
	switch run.State {
	case StateTriaging:
		label, err := o.triager.Classify(ctx, run.Query)
		if err != nil {
			return StateFailed, err
		}
		run.Label = label
		if label == LabelOutOfScope {
			run.Answer = domain.Answer{Query: run.Query, Text: OutOfScopeAnswer, ChunkIDs: []string{}, OutOfScope: true}
			return StateDone, nil
		}
		return StateEmbeddingQuery, nil

	case StateEmbeddingQuery:
		vec, err := o.retriever.EmbedQuery(ctx, run.Query)
		if err != nil {
			return StateFailed, err
		}
		run.Vector = vec
		return StateRetrieving, nil

	case StateRetrieving:
		results, err := o.retriever.Search(ctx, run.Query, run.Vector, run.K)
		if err != nil {
			return StateFailed, err
		}
		run.Results = results
		o.metrics.RetrievalReturned(len(results))
		return StateComposingContext, nil

	case StateComposingContext:
		run.Context = o.composer.Assemble(run.Results)
		if len(run.Context.Included) == 0 {
			run.Answer = answer.NoContextAnswer(run.Query)
			return StateDone, nil
		}
		if len(run.Context.Dropped) > 0 {
			slog.InfoContext(ctx, "context budget reached", "included", len(run.Context.Included), "dropped", len(run.Context.Dropped), "size", run.Context.Size)
		}
		p, err := o.composer.Render(run.Query, run.Context)
		if err != nil {
			return StateFailed, &domain.GenerationError{ChunkIDs: run.Context.ChunkIDs(), Err: err}
		}
		run.Prompt = p
		return StateGeneratingAnswer, nil

	case StateGeneratingAnswer:
		ids := run.Context.ChunkIDs()
		text, err := o.composer.Generate(ctx, run.Prompt, ids)
		if err != nil {
			return StateFailed, err
		}
		run.Answer = domain.Answer{Query: run.Query, Text: text, ChunkIDs: ids}
		return StateDone, nil
	}
	return StateFailed, fmt.Errorf("no transition from state %s", run.State)
}

func (o *Orchestrator) finish(ctx context.Context, run *Run, start time.Time) {
	elapsed := time.Since(start)
	outcome := metrics.OutcomeAnswered
	switch {
	case run.State == StateFailed:
		outcome = metrics.OutcomeFailed
	case run.Answer.OutOfScope:
		outcome = metrics.OutcomeOutOfScope
	case run.Answer.NoContext:
		outcome = metrics.OutcomeNoContext
	}
	o.metrics.QueryFinished(outcome, elapsed)

	if run.State == StateFailed {
		level := slog.LevelError
		if errors.Is(run.Err, context.Canceled) || errors.Is(run.Err, domain.ErrEmptyQuery) || errors.Is(run.Err, domain.ErrInvalidK) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "query failed", "stage", run.FailedIn, "error", run.Err, "duration", elapsed)
		return
	}
	slog.InfoContext(ctx, "query answered", "outcome", outcome, "chunks", len(run.Answer.ChunkIDs), "duration", elapsed)
}
