package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the model in logs and errors.
	Name() string
}

// degradedScale bounds the values of placeholder vectors.
const degradedScale = 0.01

// Result is the outcome of a single embedding call. When Degraded is true,
// Vector is a low-magnitude random placeholder of the right length and Err
// holds the provider failure.
type Result struct {
	Vector   []float32
	Degraded bool
	Err      error
}

// Fallback wraps an Embedder so that a single text always yields a vector of
// the configured dimensionality.
type Fallback struct {
	embedder Embedder
	dims     int
	logger   *slog.Logger
}

// NewFallback wraps embedder. dims overrides the embedder's reported
// dimensionality when positive.
func NewFallback(embedder Embedder, dims int, logger *slog.Logger) *Fallback {
	if dims <= 0 {
		dims = embedder.Dimensions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{embedder: embedder, dims: dims, logger: logger}
}

// Dimensions returns the length of every vector Embed produces.
func (f *Fallback) Dimensions() int { return f.dims }

// Name returns the wrapped model name.
func (f *Fallback) Name() string { return f.embedder.Name() }

// Embed embeds text, degrading to a placeholder vector on any failure.
func (f *Fallback) Embed(ctx context.Context, text string) Result {
	vecs, err := f.embedder.Embed(ctx, []string{text})
	if err == nil {
		switch {
		case len(vecs) == 0:
			err = fmt.Errorf("%s returned no embedding", f.embedder.Name())
		case len(vecs[0]) != f.dims:
			err = fmt.Errorf("%s returned %d dimensions, expected %d", f.embedder.Name(), len(vecs[0]), f.dims)
		default:
			return Result{Vector: vecs[0]}
		}
	}

	f.logger.Error("embedding generation failed, using placeholder vector",
		"model", f.embedder.Name(), "error", err)
	return Result{Vector: Placeholder(f.dims), Degraded: true, Err: err}
}

// Placeholder returns a random vector of length dims with values in [0, 0.01).
func Placeholder(dims int) []float32 {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(rand.Float64() * degradedScale)
	}
	return vec
}
