package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

// Default tier parameters.
const (
	DefaultThreshold       = 0.1
	DefaultIndexedLimit    = 5
	DefaultScanLimit       = 3
	DefaultKeywordLimit    = 3
	DefaultKeywordPageSize = 5
	DefaultKeywordScore    = 0.5
)

var errNoEmbeddedDocuments = errors.New("no documents with embeddings")

// Strategy is one tier of the fallback search. A non-nil error means the tier
// could not serve the request and the next one should be tried; an empty
// result with a nil error is a definitive "no matches".
type Strategy interface {
	Name() string
	TryFetch(ctx context.Context, question string, vector []float32) ([]knowledge.Match, error)
}

// IndexedTier uses the store's native similarity search.
type IndexedTier struct {
	Store     knowledge.Store
	Threshold float64
	Limit     int
}

func (t *IndexedTier) Name() string { return "indexed" }

func (t *IndexedTier) TryFetch(ctx context.Context, _ string, vector []float32) ([]knowledge.Match, error) {
	matches, err := t.Store.SearchIndexed(ctx, vector, t.Threshold, t.Limit)
	if err != nil {
		return nil, err
	}
	if len(matches) > t.Limit {
		matches = matches[:t.Limit]
	}
	return matches, nil
}

// ScanTier loads every embedded document and ranks it client-side.
type ScanTier struct {
	Store knowledge.Store
	Limit int
}

func (t *ScanTier) Name() string { return "scan" }

func (t *ScanTier) TryFetch(ctx context.Context, _ string, vector []float32) ([]knowledge.Match, error) {
	docs, err := t.Store.ScanWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning embedded documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, errNoEmbeddedDocuments
	}

	matches := make([]knowledge.Match, 0, len(docs))
	for _, d := range docs {
		if !d.HasEmbedding() {
			continue
		}
		matches = append(matches, knowledge.MatchFromDocument(d, Cosine(vector, d.Embedding)))
	}
	return topN(matches, t.Limit), nil
}

// KeywordTier is the last resort: a case-insensitive substring match over an
// unfiltered page of documents, each hit scored with a fixed similarity.
type KeywordTier struct {
	Store    knowledge.Store
	PageSize int
	Limit    int
	Score    float64
}

func (t *KeywordTier) Name() string { return "keyword" }

func (t *KeywordTier) TryFetch(ctx context.Context, question string, _ []float32) ([]knowledge.Match, error) {
	docs, err := t.Store.ScanAny(ctx, t.PageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", knowledge.ErrStoreUnavailable, err)
	}

	needle := strings.ToLower(question)
	var matches []knowledge.Match
	for _, d := range docs {
		if d.Content == "" || !strings.Contains(strings.ToLower(d.Content), needle) {
			continue
		}
		matches = append(matches, knowledge.MatchFromDocument(d, t.Score))
	}
	return topN(matches, t.Limit), nil
}

// topN sorts matches by descending similarity, keeping input order for ties,
// and truncates to n.
func topN(matches []knowledge.Match, n int) []knowledge.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if n > 0 && len(matches) > n {
		matches = matches[:n]
	}
	return matches
}
