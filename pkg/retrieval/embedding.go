package retrieval

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// EmbeddingProvider turns text into the fixed-dimension vectors the store
// indexes.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// The store declares its vec table with the provider's dimension, so it has
// to be known before the first embedding call.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

const defaultDimension = 1536

// OpenAIEmbedder generates embeddings through the OpenAI API.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedding provider for the given model.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *OpenAIEmbedder) Dimension() int {
	if d, ok := modelDimensions[p.model]; ok {
		return d
	}
	return defaultDimension
}

func (p *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
