package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Embedder calls the Gemini embedding API.
type Embedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	name   string

	mu        sync.Mutex
	dimension int
}

// New creates a Gemini embedder for model (default text-embedding-004).
func New(ctx context.Context, apiKey, model string) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini embeddings: missing API key")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	em := client.EmbeddingModel(model)
	return &Embedder{client: client, model: em, name: "gemini:" + model}, nil
}

func (e *Embedder) Name() string { return e.name }

func (e *Embedder) Prepare(context.Context, []string) error { return nil }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("gemini embed: empty embedding")
	}
	out := make([]float64, len(res.Embedding.Values))
	for i, v := range res.Embedding.Values {
		out[i] = float64(v)
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out)
	}
	e.mu.Unlock()
	return out, nil
}

func (e *Embedder) Close() error { return e.client.Close() }
