package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const maxBatchSize = 100

// OpenAIModel represents a supported OpenAI embedding model.
type OpenAIModel string

const (
	ModelTextEmbedding3Small OpenAIModel = "text-embedding-3-small"
	ModelTextEmbedding3Large OpenAIModel = "text-embedding-3-large"
)

func (m OpenAIModel) dimensions() int {
	switch m {
	case ModelTextEmbedding3Small:
		return 1536
	case ModelTextEmbedding3Large:
		return 3072
	default:
		return 1536
	}
}

// OpenAIEmbedder generates embeddings using OpenAI's API or any server that
// speaks the same embeddings protocol.
type OpenAIEmbedder struct {
	client *openai.Client
	model  OpenAIModel
	dims   int
}

// NewOpenAIEmbedder creates a new OpenAI embedder. When dims is positive the
// model is asked to shorten its vectors to that length (text-embedding-3
// models support this), keeping them compatible with a store sized for
// another provider.
func NewOpenAIEmbedder(apiKey string, model OpenAIModel, dims int) *OpenAIEmbedder {
	return newOpenAIEmbedder(openai.DefaultConfig(apiKey), model, dims)
}

// NewOpenAICompatibleEmbedder targets an OpenAI-compatible endpoint at baseURL.
func NewOpenAICompatibleEmbedder(baseURL, apiKey string, model OpenAIModel, dims int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return newOpenAIEmbedder(cfg, model, dims)
}

func newOpenAIEmbedder(cfg openai.ClientConfig, model OpenAIModel, dims int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dims:   dims,
	}
}

func (e *OpenAIEmbedder) Name() string {
	return string(e.model)
}

func (e *OpenAIEmbedder) Dimensions() int {
	if e.dims > 0 {
		return e.dims
	}
	return e.model.dimensions()
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += maxBatchSize {
		end := min(i+maxBatchSize, len(texts))
		batch := texts[i:end]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dims,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding request failed: %w", err)
		}

		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings, expected %d", len(resp.Data), len(batch))
		}

		for _, emb := range resp.Data {
			allEmbeddings = append(allEmbeddings, emb.Embedding)
		}
	}

	return allEmbeddings, nil
}
