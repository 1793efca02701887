package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"research-orchestrator/internal/config"
	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/infra/metrics"
)

var _ adapter.Embedder = (*GeminiEmbedder)(nil)

// embedBatch is the most texts sent in one EmbedContent call.
const embedBatch = 100

// GeminiEmbedder produces embeddings with the server's Gemini key.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (*GeminiEmbedder, error) {
	if cfg.GeminiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: c, model: cfg.Model, dim: cfg.Dimensions}, nil
}

func (g *GeminiEmbedder) Dimensions() int { return g.dim }

// Embed returns one vector per text, in input order.
func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	dim := int32(g.dim)
	for start := 0; start < len(texts); start += embedBatch {
		end := start + embedBatch
		if end > len(texts) {
			end = len(texts)
		}
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: t}},
			})
		}

		began := time.Now()
		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: &dim,
		})
		metrics.ObserveExternalCall("gemini", "embed", time.Since(began), err == nil)
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embed content: got %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}
