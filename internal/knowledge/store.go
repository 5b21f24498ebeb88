// Package knowledge defines the documents, matches and chat history records
// shared by the retrieval pipeline, and the store contracts it depends on.
package knowledge

import (
	"context"
	"errors"
)

var (
	// ErrStoreUnavailable means the store could not be queried at all,
	// typically because its schema has not been created.
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrIndexUnavailable means the store has no usable native similarity
	// search: none is configured, it failed, or nothing is indexed yet.
	ErrIndexUnavailable = errors.New("similarity index unavailable")

	// ErrDimensionMismatch is returned when an embedding does not have the
	// store's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidDocument is returned when a document lacks a title or content.
	ErrInvalidDocument = errors.New("title and content are required")
)

// Store is the read/append surface the retrieval pipeline uses.
type Store interface {
	// SearchIndexed delegates to the store's native similarity search.
	// Results are ordered by descending similarity, at most limit long,
	// and only include entries scoring at least threshold.
	SearchIndexed(ctx context.Context, vector []float32, threshold float64, limit int) ([]Match, error)

	// ScanWithEmbeddings returns every document that has an embedding.
	ScanWithEmbeddings(ctx context.Context) ([]Document, error)

	// ScanAny returns up to limit documents regardless of embeddings.
	ScanAny(ctx context.Context, limit int) ([]Document, error)

	// AppendHistory persists one chat history entry.
	AppendHistory(ctx context.Context, entry HistoryEntry) error
}

// Stats summarises store contents for the status endpoint.
type Stats struct {
	Documents      int
	WithEmbeddings int
	Sample         []Document
	RecentHistory  int
}

// Catalog is the document management surface used outside the chat pipeline.
type Catalog interface {
	Store

	// CreateDocument inserts a document and returns it with ID and CreatedAt set.
	CreateDocument(ctx context.Context, doc Document) (*Document, error)

	// ListDocuments returns all documents, newest first, without embeddings.
	ListDocuments(ctx context.Context) ([]Document, error)

	// FindByTitle returns the document with the given title, or nil.
	FindByTitle(ctx context.Context, title string) (*Document, error)

	// ListMissingEmbeddings returns documents whose embedding is still nil.
	ListMissingEmbeddings(ctx context.Context) ([]Document, error)

	// UpdateEmbedding sets the embedding of an existing document.
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error

	// Stats reports document and history counts.
	Stats(ctx context.Context) (*Stats, error)

	// Ping verifies the document table is reachable.
	Ping(ctx context.Context) error
}
