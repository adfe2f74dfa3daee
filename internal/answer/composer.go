package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ragpipe/internal/domain"
	"ragpipe/internal/llm"
	"ragpipe/internal/prompt"
	"ragpipe/internal/tokens"
)

// InsufficientInformation is returned verbatim when retrieval found nothing
// that fits the context budget. The completion service is not called.
const InsufficientInformation = "I don't have enough information in the indexed documents to answer this question."

const passageSeparator = "\n\n"

type Config struct {
	// Budget caps the rendered context block, measured by the counter.
	Budget  int
	Options llm.Options
}

// Context is the context block assembled for one query.
type Context struct {
	Block     string
	Size      int
	Included  domain.RetrievalResult
	Dropped   domain.RetrievalResult
	Citations []prompt.Citation
}

func (c Context) ChunkIDs() []string {
	ids := make([]string, len(c.Included))
	for i, sc := range c.Included {
		ids[i] = sc.Chunk.ID
	}
	return ids
}

type Composer struct {
	completer llm.Completer
	prompts   *prompt.Set
	counter   tokens.Counter
	cfg       Config
}

func NewComposer(c llm.Completer, prompts *prompt.Set, counter tokens.Counter, cfg Config) *Composer {
	if counter == nil {
		counter = tokens.Chars{}
	}
	return &Composer{completer: c, prompts: prompts, counter: counter, cfg: cfg}
}

// Assemble concatenates results in rank order until the next passage would
// exceed the budget. That chunk and every lower ranked one are dropped.
func (c *Composer) Assemble(results domain.RetrievalResult) Context {
	var out Context
	var b strings.Builder
	for i, sc := range results {
		passage := fmt.Sprintf("[%d] %s", len(out.Included)+1, strings.TrimSpace(sc.Chunk.Text))
		candidate := passage
		if b.Len() > 0 {
			candidate = b.String() + passageSeparator + passage
		}
		size := c.counter.Count(candidate)
		if size > c.cfg.Budget {
			out.Dropped = append(out.Dropped, results[i:]...)
			break
		}
		b.Reset()
		b.WriteString(candidate)
		out.Size = size
		out.Included = append(out.Included, sc)
		out.Citations = append(out.Citations, prompt.Citation{
			Index:      len(out.Included),
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			Position:   sc.Chunk.Position,
		})
	}
	out.Block = b.String()
	return out
}

// Render fills the answer template for query and an assembled context.
func (c *Composer) Render(query string, cc Context) (prompt.Rendered, error) {
	return c.prompts.Render(prompt.AnswerGeneration, prompt.AnswerData{
		Query:     query,
		Context:   cc.Block,
		Citations: cc.Citations,
	})
}

// Generate sends a rendered prompt to the completion service once. Failures
// come back as a GenerationError holding the prompt so the call can be
// repeated without retrieving again.
func (c *Composer) Generate(ctx context.Context, p prompt.Rendered, chunkIDs []string) (string, error) {
	opts := c.cfg.Options
	opts.System = p.System
	out, err := c.completer.Complete(ctx, p.User, opts)
	if err != nil {
		slog.ErrorContext(ctx, "answer generation failed", "error", err, "chunks", len(chunkIDs))
		return "", &domain.GenerationError{Prompt: p.User, ChunkIDs: chunkIDs, Err: err}
	}
	return strings.TrimSpace(out), nil
}

// NoContextAnswer is the fixed answer used when nothing could be included.
func NoContextAnswer(query string) domain.Answer {
	return domain.Answer{Query: query, Text: InsufficientInformation, ChunkIDs: []string{}, NoContext: true}
}
