// Package documents manages the knowledge-base documents: SQLite and
// Postgres stores, creation with synchronous embedding, the embedding
// backfill batch, sample data and the management HTTP API.
package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ziadkadry99/kbchat/internal/embeddings"
	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

// DefaultSeedInterval is the pause between sample document inserts.
const DefaultSeedInterval = 200 * time.Millisecond

// SampleDocuments are the FAQ entries inserted by Seed.
var SampleDocuments = []knowledge.Document{
	{
		Title:   "勤務時間について",
		Content: "通常勤務時間は平日9:00-18:00です。フレックスタイム制度もあり、コアタイムは10:00-15:00です。リモートワークも週3日まで可能です。",
		Source:  "FAQ",
	},
	{
		Title:   "有給休暇の取得方法",
		Content: "有給休暇は入社6ヶ月後から取得可能です。申請は勤怠システムから最低3日前までに行ってください。年末年始やGWなどの繁忙期は事前相談が必要です。",
		Source:  "FAQ",
	},
	{
		Title:   "経費精算について",
		Content: "経費精算は月末締めで翌月25日支払いです。領収書は必ず保管し、精算システムに画像をアップロードしてください。交通費は定期券区間外のみ申請可能です。",
		Source:  "FAQ",
	},
}

// SeedResult reports the outcome of Seed.
type SeedResult struct {
	SuccessCount int
	Errors       []string
}

// Service creates documents, embedding their content on the way in.
type Service struct {
	catalog      knowledge.Catalog
	embedder     *embeddings.Fallback
	seedInterval time.Duration
	logger       *slog.Logger
}

// NewService creates a document Service.
func NewService(catalog knowledge.Catalog, embedder *embeddings.Fallback, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:      catalog,
		embedder:     embedder,
		seedInterval: DefaultSeedInterval,
		logger:       logger,
	}
}

// Catalog returns the underlying document catalog.
func (s *Service) Catalog() knowledge.Catalog {
	return s.catalog
}

// Add embeds the content and stores the document. A degraded embedding is
// not persisted: the document is stored without one so the regenerate
// batch can backfill it.
func (s *Service) Add(ctx context.Context, doc knowledge.Document) (*knowledge.Document, error) {
	if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Content) == "" {
		return nil, knowledge.ErrInvalidDocument
	}

	emb := s.embedder.Embed(ctx, doc.Content)
	if emb.Degraded {
		s.logger.Warn("storing document without embedding", "title", doc.Title, "error", emb.Err)
		doc.Embedding = nil
	} else {
		doc.Embedding = emb.Vector
	}

	created, err := s.catalog.CreateDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AddIfMissing adds doc unless a document with the same title exists.
func (s *Service) AddIfMissing(ctx context.Context, doc knowledge.Document) (bool, error) {
	existing, err := s.catalog.FindByTitle(ctx, doc.Title)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if _, err := s.Add(ctx, doc); err != nil {
		return false, err
	}
	return true, nil
}

// Seed inserts SampleDocuments, skipping titles that already exist.
func (s *Service) Seed(ctx context.Context) (*SeedResult, error) {
	if err := s.catalog.Ping(ctx); err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Every(s.seedInterval), 1)
	res := &SeedResult{}
	for _, doc := range SampleDocuments {
		if err := limiter.Wait(ctx); err != nil {
			return res, err
		}
		added, err := s.AddIfMissing(ctx, doc)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to add %q: %v", doc.Title, err))
			continue
		}
		if added {
			res.SuccessCount++
		}
	}
	return res, nil
}
