package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"ragpipe/internal/llm"
)

var ErrEmptyResponse = errors.New("ollama returned an empty response")

// Client talks to a local Ollama server for embeddings and chat completions.
type Client struct {
	api             *api.Client
	embeddingModel  string
	completionModel string
}

func NewClient(rawURL, embeddingModel, completionModel string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST URL: %w", err)
	}
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		api:             api.NewClient(base, httpClient),
		embeddingModel:  embeddingModel,
		completionModel: completionModel,
	}, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", c.embeddingModel, "length", len(text))
	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{Model: c.embeddingModel, Prompt: text})
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (c *Client) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	model := c.completionModel
	if opts.Model != "" {
		model = opts.Model
	}
	var messages []api.Message
	if opts.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: opts.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: prompt})

	options := map[string]interface{}{"temperature": opts.Temperature}
	if opts.MaxOutputTokens > 0 {
		options["num_predict"] = opts.MaxOutputTokens
	}
	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Options:  options,
		Stream:   &stream,
	}

	var out strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "model", model, "error", err)
		return "", err
	}
	if out.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return out.String(), nil
}

func (c *Client) Close() error { return nil }

var (
	_ llm.Embedder  = (*Client)(nil)
	_ llm.Completer = (*Client)(nil)
)
