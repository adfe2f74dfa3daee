package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ragpipe/internal/llm"
)

var ErrEmptyResponse = errors.New("gemini returned an empty response")

// Client serves embeddings and completions from one Gemini API client.
type Client struct {
	client          *genai.Client
	embeddingModel  string
	completionModel string
}

func NewClient(ctx context.Context, apiKey, embeddingModel, completionModel string, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, embeddingModel: embeddingModel, completionModel: completionModel}, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", c.embeddingModel, "length", len(text))
	em := c.client.EmbeddingModel(c.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ErrEmptyResponse
	}
	return res.Embedding.Values, nil
}

func (c *Client) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	name := c.completionModel
	if opts.Model != "" {
		name = opts.Model
	}
	model := c.client.GenerativeModel(name)
	model.SetTemperature(opts.Temperature)
	if opts.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxOutputTokens))
	}
	if opts.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(opts.System))
	}

	slog.DebugContext(ctx, "generating content", "model", name, "prompt_length", len(prompt))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "model", name, "error", err)
		return "", err
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

var (
	_ llm.Embedder  = (*Client)(nil)
	_ llm.Completer = (*Client)(nil)
)
