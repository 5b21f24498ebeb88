package vectordb

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/kbchat/internal/embeddings"
)

const collectionName = "documents"

// ChromemIndex implements Index in process using chromem-go.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
}

// NewChromemIndex creates an empty in-memory index. The embedder is only
// consulted if chromem needs to embed text itself; queries always pass
// precomputed vectors.
func NewChromemIndex(embedder embeddings.Embedder) (*ChromemIndex, error) {
	db := chromem.NewDB()
	ef := chromemEmbedFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemIndex{db: db, collection: col, embedFunc: ef}, nil
}

// chromemEmbedFunc adapts embedder for the rare case chromem embeds text
// itself.
func chromemEmbedFunc(embedder embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("%s returned no embedding", embedder.Name())
		}
		return vecs[0], nil
	}
}

func (c *ChromemIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s has no embedding", e.ID)
		}
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Title,
			Embedding: e.Embedding,
			Metadata:  map[string]string{"title": e.Title, "source": e.Source},
		}
	}

	return c.collection.AddDocuments(ctx, docs, 1)
}

func (c *ChromemIndex) Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]Hit, error) {
	count := c.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	results, err := c.collection.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:         r.ID,
			Title:      r.Metadata["title"],
			Source:     r.Metadata["source"],
			Similarity: float64(r.Similarity),
		}
	}
	return filterHits(hits, threshold, limit), nil
}

func (c *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.collection.Delete(ctx, nil, nil, ids...)
}

func (c *ChromemIndex) Count(context.Context) (int, error) {
	return c.collection.Count(), nil
}

// Persist saves the index to dir.
func (c *ChromemIndex) Persist(dir string) error {
	return c.db.ExportToFile(filepath.Join(dir, "chromem.gob.gz"), true, "")
}

// Load restores the index from dir.
func (c *ChromemIndex) Load(dir string) error {
	if err := c.db.ImportFromFile(filepath.Join(dir, "chromem.gob.gz"), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection reference after import.
	col := c.db.GetCollection(collectionName, c.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	c.collection = col
	return nil
}
