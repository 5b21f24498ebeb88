package embeddings

import (
	"context"
	"fmt"
	"net/http"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// GoogleModel names a Gemini embedding model.
type GoogleModel string

const (
	ModelTextEmbedding004   GoogleModel = "text-embedding-004"
	ModelGeminiEmbedding001 GoogleModel = "gemini-embedding-001"
)

// nativeDimensions is the vector length a model returns when no output
// dimensionality is requested.
func (m GoogleModel) nativeDimensions() int {
	if m == ModelGeminiEmbedding001 {
		return 3072
	}
	return 768
}

// googleBatchLimit is the most requests batchEmbedContents accepts at once.
const googleBatchLimit = 100

// GoogleEmbedder calls the Gemini batchEmbedContents endpoint.
type GoogleEmbedder struct {
	apiKey     string
	model      GoogleModel
	dims       int
	baseURL    string
	httpClient *http.Client
}

// NewGoogleEmbedder creates an embedder for model returning its native
// dimensionality.
func NewGoogleEmbedder(apiKey string, model GoogleModel) *GoogleEmbedder {
	return &GoogleEmbedder{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGoogleBaseURL,
		httpClient: &http.Client{},
	}
}

// WithBaseURL points the embedder at a different API root.
func (e *GoogleEmbedder) WithBaseURL(baseURL string) *GoogleEmbedder {
	e.baseURL = baseURL
	return e
}

// WithDimensions asks the API to truncate vectors to dims. Only models
// that support outputDimensionality honour it.
func (e *GoogleEmbedder) WithDimensions(dims int) *GoogleEmbedder {
	e.dims = dims
	return e
}

func (e *GoogleEmbedder) Name() string {
	return string(e.model)
}

func (e *GoogleEmbedder) Dimensions() int {
	if e.dims > 0 {
		return e.dims
	}
	return e.model.nativeDimensions()
}

type googleBatchRequest struct {
	Requests []googleEmbedRequest `json:"requests"`
}

type googleEmbedRequest struct {
	Model                string        `json:"model"`
	Content              googleContent `json:"content"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed returns one vector per text, in order. Large inputs are split into
// several batch calls.
func (e *GoogleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += googleBatchLimit {
		end := min(start+googleBatchLimit, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *GoogleEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := "models/" + string(e.model)
	batch := googleBatchRequest{Requests: make([]googleEmbedRequest, len(texts))}
	for i, text := range texts {
		batch.Requests[i] = googleEmbedRequest{
			Model:                model,
			Content:              googleContent{Parts: []googlePart{{Text: text}}},
			OutputDimensionality: e.dims,
		}
	}
	url := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", e.baseURL, e.model, e.apiKey)
	var result googleBatchResponse
	if err := postJSON(ctx, e.httpClient, "gemini embed", url, batch, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini returned an empty embedding for text %d", i)
		}
		vecs[i] = emb.Values
	}
	return vecs, nil
}
