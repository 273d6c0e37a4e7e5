package adapter

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Embedder converts a text fragment into a fixed-length vector via an
// external provider. Implementations return an error on any provider
// failure; callers are expected to degrade that to "absent embedding"
// rather than fail the surrounding request.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	HealthCheck(ctx context.Context) bool
}

// GeminiEmbedder implements Embedder using the Gemini embedding API
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
	timeout   time.Duration
}

type GeminiOption func(*GeminiEmbedder)

// WithEmbeddingModel overrides the embedding model name
func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.model = model
	}
}

// WithTimeout overrides the per-call timeout
func WithTimeout(d time.Duration) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.timeout = d
	}
}

// NewGemini creates a Gemini-backed embedder. dimension must match the
// vector columns of the backing store.
func NewGemini(ctx context.Context, projectID, location string, dimension int, opts ...GeminiOption) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiEmbedder{
		client:    client,
		model:     "gemini-embedding-001",
		dimension: int32(dimension),
		timeout:   30 * time.Second,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &g.dimension,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content")
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding response")
	}

	return resp.Embeddings[0].Values, nil
}

func (g *GeminiEmbedder) HealthCheck(ctx context.Context) bool {
	_, err := g.Embed(ctx, "ping")
	return err == nil
}
