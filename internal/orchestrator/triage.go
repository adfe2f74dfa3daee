package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"ragpipe/internal/domain"
	"ragpipe/internal/llm"
	"ragpipe/internal/prompt"
)

type Label string

const (
	LabelDataQuestion Label = "DATA_QUESTION"
	LabelOutOfScope   Label = "OUT_OF_SCOPE"
)

// OutOfScopeAnswer is returned for queries triage rejects.
const OutOfScopeAnswer = "Your query is out of scope."

// Triager asks the completion service whether a query falls within the
// corpus scope.
type Triager struct {
	completer llm.Completer
	prompts   *prompt.Set
	scope     string
	opts      llm.Options
}

func NewTriager(c llm.Completer, prompts *prompt.Set, scope string, opts llm.Options) *Triager {
	opts.MaxOutputTokens = 16
	opts.Temperature = 0
	return &Triager{completer: c, prompts: prompts, scope: scope, opts: opts}
}

// Classify returns the query label. An unrecognised reply is treated as a
// data question.
func (t *Triager) Classify(ctx context.Context, query string) (Label, error) {
	p, err := t.prompts.Render(prompt.Triage, prompt.TriageData{Query: query, Scope: t.scope})
	if err != nil {
		return "", &domain.GenerationError{Err: err}
	}
	opts := t.opts
	opts.System = p.System
	out, err := t.completer.Complete(ctx, p.User, opts)
	if err != nil {
		return "", &domain.GenerationError{Prompt: p.User, Err: err}
	}
	reply := strings.ToUpper(out)
	switch {
	case strings.Contains(reply, string(LabelOutOfScope)):
		return LabelOutOfScope, nil
	case strings.Contains(reply, string(LabelDataQuestion)):
		return LabelDataQuestion, nil
	}
	slog.WarnContext(ctx, "unrecognised triage label, treating as data question", "reply", out)
	return LabelDataQuestion, nil
}
