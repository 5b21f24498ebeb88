// Package retrieval finds documents relevant to a question. Search runs an
// ordered chain of strategies, moving to the next tier whenever the current
// one cannot serve the request.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

// Options tunes the default tier chain.
type Options struct {
	Threshold       float64
	IndexedLimit    int
	ScanLimit       int
	KeywordLimit    int
	KeywordPageSize int
	KeywordScore    float64
}

// DefaultOptions returns the standard tier parameters.
func DefaultOptions() Options {
	return Options{
		Threshold:       DefaultThreshold,
		IndexedLimit:    DefaultIndexedLimit,
		ScanLimit:       DefaultScanLimit,
		KeywordLimit:    DefaultKeywordLimit,
		KeywordPageSize: DefaultKeywordPageSize,
		KeywordScore:    DefaultKeywordScore,
	}
}

// Result is the outcome of a search. Tier names the strategy that produced it.
type Result struct {
	Matches []knowledge.Match
	Tier    string
}

// Searcher runs strategies in order until one of them answers.
type Searcher struct {
	tiers  []Strategy
	logger *slog.Logger
}

// NewSearcher builds a searcher over the given strategies.
func NewSearcher(logger *slog.Logger, tiers ...Strategy) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{tiers: tiers, logger: logger}
}

// NewDefaultSearcher builds the indexed -> scan -> keyword chain over store.
func NewDefaultSearcher(store knowledge.Store, opts Options, logger *slog.Logger) *Searcher {
	return NewSearcher(logger,
		&IndexedTier{Store: store, Threshold: opts.Threshold, Limit: opts.IndexedLimit},
		&ScanTier{Store: store, Limit: opts.ScanLimit},
		&KeywordTier{Store: store, PageSize: opts.KeywordPageSize, Limit: opts.KeywordLimit, Score: opts.KeywordScore},
	)
}

// Search returns the first tier's answer. If every tier fails the returned
// error wraps knowledge.ErrStoreUnavailable.
func (s *Searcher) Search(ctx context.Context, question string, vector []float32) (*Result, error) {
	var lastErr error
	for _, tier := range s.tiers {
		matches, err := tier.TryFetch(ctx, question, vector)
		if err == nil {
			s.logger.Debug("retrieval tier answered", "tier", tier.Name(), "matches", len(matches))
			return &Result{Matches: matches, Tier: tier.Name()}, nil
		}
		s.logger.Warn("retrieval tier unavailable, falling back", "tier", tier.Name(), "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no retrieval tiers configured")
	}
	if errors.Is(lastErr, knowledge.ErrStoreUnavailable) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", knowledge.ErrStoreUnavailable, lastErr)
}
