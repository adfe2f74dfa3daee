// Package llm defines the embedding and completion boundaries the pipeline
// talks to. Adapters live under internal/adapter.
package llm

import "context"

type Embedder interface {
	// Embed returns a vector of the model's fixed dimension.
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	Temperature     float32
	MaxOutputTokens int
	// Model overrides the adapter's default completion model when set.
	Model string
	// System is sent as the system instruction when the provider supports it.
	System string
}

type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}
