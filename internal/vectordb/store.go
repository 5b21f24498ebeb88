package vectordb

import "context"

// Index is a native similarity index over document embeddings. Document
// content stays in the document store; the index only knows IDs, a few
// display fields and vectors.
type Index interface {
	// Upsert adds or replaces entries.
	Upsert(ctx context.Context, entries []Entry) error

	// Query returns up to limit hits whose cosine similarity to vector is
	// at least threshold, most similar first.
	Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]Hit, error)

	// Delete removes entries by document ID.
	Delete(ctx context.Context, ids ...string) error

	// Count returns the number of indexed entries.
	Count(ctx context.Context) (int, error)
}
