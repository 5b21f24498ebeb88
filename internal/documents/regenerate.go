package documents

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ziadkadry99/kbchat/internal/embeddings"
	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/progress"
)

// DefaultRegenerateInterval is the pause between embedding calls in a batch.
const DefaultRegenerateInterval = 100 * time.Millisecond

// RegenerateResult reports how many documents received an embedding out of
// those that were missing one.
type RegenerateResult struct {
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// Regenerator backfills missing embeddings one document at a time.
type Regenerator struct {
	catalog  knowledge.Catalog
	embedder *embeddings.Fallback
	interval time.Duration
	logger   *slog.Logger
}

// NewRegenerator creates a Regenerator. interval <= 0 uses DefaultRegenerateInterval.
func NewRegenerator(catalog knowledge.Catalog, embedder *embeddings.Fallback, interval time.Duration, logger *slog.Logger) *Regenerator {
	if interval <= 0 {
		interval = DefaultRegenerateInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Regenerator{catalog: catalog, embedder: embedder, interval: interval, logger: logger}
}

// Run embeds every document lacking an embedding. A failing document is
// logged and skipped; only listing the documents can fail the batch.
func (r *Regenerator) Run(ctx context.Context, reporter progress.Reporter) (*RegenerateResult, error) {
	if reporter == nil {
		reporter = progress.Nop{}
	}

	docs, err := r.catalog.ListMissingEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	res := &RegenerateResult{Total: len(docs)}
	if len(docs) == 0 {
		return res, nil
	}

	limiter := rate.NewLimiter(rate.Every(r.interval), 1)
	reporter.Begin(len(docs))
	defer reporter.Done()

	for _, doc := range docs {
		if err := limiter.Wait(ctx); err != nil {
			return res, err
		}

		emb := r.embedder.Embed(ctx, doc.Content)
		if emb.Degraded {
			r.logger.Warn("skipping document, embedding failed", "id", doc.ID, "title", doc.Title, "error", emb.Err)
			reporter.Skipped(doc.Title, emb.Err)
			continue
		}
		if err := r.catalog.UpdateEmbedding(ctx, doc.ID, emb.Vector); err != nil {
			r.logger.Warn("skipping document, update failed", "id", doc.ID, "title", doc.Title, "error", err)
			reporter.Skipped(doc.Title, err)
			continue
		}
		reporter.Embedded(doc.Title)
		res.Updated++
	}

	r.logger.Info("embedding regeneration finished", "updated", res.Updated, "total", res.Total)
	return res, nil
}
