package generate

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ChunkFunc receives one piece of incremental response text. Returning
// an error aborts the stream.
type ChunkFunc func(ctx context.Context, text string) error

// ModelClient is the transport to the model. Stream drives one
// generation request chunk by chunk; Complete is the small non-streaming
// call used by the descriptor repair path.
type ModelClient interface {
	Stream(ctx context.Context, prompt string, onChunk ChunkFunc) error
	Complete(ctx context.Context, prompt string) (string, error)
}

// GenkitClient implements ModelClient on a Genkit instance.
type GenkitClient struct {
	g         *genkit.Genkit
	modelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
}

// NewGenkitClient creates a client. An empty modelName defers to the
// Genkit default model.
func NewGenkitClient(g *genkit.Genkit, modelName string) *GenkitClient {
	return &GenkitClient{g: g, modelName: modelName}
}

// Stream runs a streaming generation. Chunks are delivered in order on
// the calling goroutine's read loop; cancellation of ctx terminates the
// underlying request.
func (c *GenkitClient) Stream(ctx context.Context, prompt string, onChunk ChunkFunc) error {
	opts := []ai.GenerateOption{
		ai.WithPrompt(prompt),
		ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			return onChunk(ctx, chunk.Text())
		}),
	}
	if c.modelName != "" {
		opts = append(opts, ai.WithModelName(c.modelName))
	}

	if _, err := genkit.Generate(ctx, c.g, opts...); err != nil {
		return fmt.Errorf("streaming generation: %w", err)
	}
	return nil
}

// Complete runs a non-streaming generation and returns the full
// response text.
func (c *GenkitClient) Complete(ctx context.Context, prompt string) (string, error) {
	opts := []ai.GenerateOption{ai.WithPrompt(prompt)}
	if c.modelName != "" {
		opts = append(opts, ai.WithModelName(c.modelName))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return resp.Text(), nil
}
