// Package llm wraps the Gemini API behind small interfaces so that the
// parsing and categorization code can be tested without network access.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// TextModel generates a free-text completion for a prompt.
type TextModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder converts text into an embedding vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client is the Gemini-backed implementation of TextModel and Embedder.
// Credentials come from the environment (GEMINI_API_KEY or ADC), the same
// way the genai SDK resolves them everywhere else.
type Client struct {
	client         *genai.Client
	modelName      string
	embeddingModel string
}

// NewClient creates a Gemini client for the given generation and embedding models.
func NewClient(ctx context.Context, modelName, embeddingModel string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("llm.NewClient: create genai client: %w", err)
	}

	return &Client{
		client:         client,
		modelName:      modelName,
		embeddingModel: embeddingModel,
	}, nil
}

// Generate sends a single-turn text prompt and returns the raw response text.
// Rate-limit responses are converted into a *RateLimitedError so callers can
// surface the advertised cooldown instead of retrying blindly.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, nil)
	if err != nil {
		if rl := AsRateLimited(err); rl != nil {
			return "", rl
		}
		return "", fmt.Errorf("llm.Generate: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("llm.Generate: empty response from model")
	}
	return text, nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		{
			Parts: []*genai.Part{{Text: text}},
		},
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("llm.Embed: embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("llm.Embed: empty embedding from model")
	}
	return resp.Embeddings[0].Values, nil
}

var _ TextModel = (*Client)(nil)
var _ Embedder = (*Client)(nil)
