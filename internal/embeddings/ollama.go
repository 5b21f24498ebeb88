package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaEmbedder embeds through a local Ollama server's /api/embed.
type OllamaEmbedder struct {
	url        string
	model      string
	dims       int
	httpClient *http.Client
}

// NewOllamaEmbedder targets baseURL, or the default local port when empty.
// dims is the model's vector length (768 for nomic-embed-text).
func NewOllamaEmbedder(model string, dims int, baseURL string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaEmbedder{
		url:        strings.TrimSuffix(baseURL, "/") + "/api/embed",
		model:      model,
		dims:       dims,
		httpClient: &http.Client{},
	}
}

func (e *OllamaEmbedder) Name() string    { return "ollama/" + e.model }
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	// Truncate lets the server cut inputs longer than the model's context
	// instead of failing the whole batch.
	Truncate bool `json:"truncate"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: e.model, Input: texts, Truncate: true}
	if err := postJSON(ctx, e.httpClient, "ollama embed", e.url, req, &result); err != nil {
		return nil, err
	}
	switch {
	case result.Error != "":
		return nil, fmt.Errorf("ollama embed error: %s", result.Error)
	case len(result.Embeddings) != len(texts):
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}
