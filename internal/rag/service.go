// Package rag answers questions against the knowledge base: embed the
// question, run the tiered document search, ground the model answer in the
// matches and record the exchange.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ziadkadry99/kbchat/internal/answer"
	"github.com/ziadkadry99/kbchat/internal/embeddings"
	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/retrieval"
)

// MaxHistoryTurns is how many prior turns a request may carry into the pipeline.
const MaxHistoryTurns = 6

const (
	// SetupMessage is returned when the document store cannot be queried at all.
	SetupMessage = "データベースの設定が完了していません。管理者にお問い合わせください。\n\n手順:\n1. 設定ファイルのドキュメントストア設定を確認し、スキーマを作成してください\n2. /api/init エンドポイントでサンプルデータを初期化してください"

	// NoMatchMessage is returned when the search ran but found nothing relevant.
	NoMatchMessage = "申し訳ございませんが、ご質問に関連する情報が見つかりませんでした。別の言葉で質問し直していただくか、より具体的な内容でお尋ねください。"
)

var (
	ErrQuestionRequired = errors.New("question is required")
	ErrInvalidModelType = errors.New("model type must be gemini or ollama")
)

// Embedder produces a query vector. It never fails; see embeddings.Fallback.
type Embedder interface {
	Embed(ctx context.Context, text string) embeddings.Result
}

// Searcher runs the tiered document search.
type Searcher interface {
	Search(ctx context.Context, question string, vector []float32) (*retrieval.Result, error)
}

// Synthesizer generates answers. Failures are reported through Result.Degraded.
type Synthesizer interface {
	Grounded(ctx context.Context, req answer.GroundedRequest) answer.Result
	Direct(ctx context.Context, req answer.DirectRequest) answer.Result
}

// HistorySink records exchanges.
type HistorySink interface {
	Append(ctx context.Context, entry knowledge.HistoryEntry) error
}

// Request is one chat question.
type Request struct {
	Question  string
	SessionID string
	History   []knowledge.Turn
	Images    []knowledge.Image
	ModelType string
}

// Response is the pipeline outcome. Documents is empty, never nil, when
// nothing was consulted.
type Response struct {
	Answer    string
	Documents []knowledge.Match
	SessionID string
	Mode      string
	Tier      string
	Degraded  bool
}

// Service wires the pipeline stages together.
type Service struct {
	embedder Embedder
	searcher Searcher
	synth    Synthesizer
	history  HistorySink
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService creates a Service. history may be nil to disable recording.
func NewService(embedder Embedder, searcher Searcher, synth Synthesizer, history HistorySink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		searcher: searcher,
		synth:    synth,
		history:  history,
		logger:   logger,
		tracer:   otel.Tracer("github.com/ziadkadry99/kbchat/internal/rag"),
	}
}

func (s *Service) validate(req *Request) error {
	if strings.TrimSpace(req.Question) == "" {
		return ErrQuestionRequired
	}
	switch req.ModelType {
	case "", answer.ModelPrimary, answer.ModelLocal:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidModelType, req.ModelType)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if len(req.History) > MaxHistoryTurns {
		req.History = req.History[len(req.History)-MaxHistoryTurns:]
	}
	return nil
}

// Ask answers a question from the knowledge base.
func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "rag.ask")
	defer span.End()

	emb := s.embedder.Embed(ctx, req.Question)
	span.SetAttributes(attribute.Bool("rag.embedding_degraded", emb.Degraded))

	found, err := s.searcher.Search(ctx, req.Question, emb.Vector)
	if err != nil {
		if errors.Is(err, knowledge.ErrStoreUnavailable) {
			s.logger.Warn("document store unavailable", "session", req.SessionID, "error", err)
			span.SetAttributes(attribute.Bool("rag.store_unavailable", true))
			return &Response{
				Answer:    SetupMessage,
				Documents: []knowledge.Match{},
				SessionID: req.SessionID,
			}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	span.SetAttributes(
		attribute.String("rag.tier", found.Tier),
		attribute.Int("rag.matches", len(found.Matches)),
	)

	entry := knowledge.HistoryEntry{
		SessionID:  req.SessionID,
		Question:   req.Question,
		Documents:  []knowledge.DocumentRef{},
		ImageTypes: knowledge.ImageTypes(req.Images),
	}

	if len(found.Matches) == 0 {
		entry.Answer = NoMatchMessage
		s.record(ctx, entry)
		return &Response{
			Answer:    NoMatchMessage,
			Documents: []knowledge.Match{},
			SessionID: req.SessionID,
			Tier:      found.Tier,
		}, nil
	}

	res := s.synth.Grounded(ctx, answer.GroundedRequest{
		Question:  req.Question,
		Documents: found.Matches,
		History:   req.History,
		Images:    req.Images,
		ModelType: req.ModelType,
	})
	span.SetAttributes(attribute.Bool("rag.answer_degraded", res.Degraded))

	entry.Answer = res.Text
	for _, m := range found.Matches {
		entry.Documents = append(entry.Documents, m.Ref())
	}
	s.record(ctx, entry)

	return &Response{
		Answer:    res.Text,
		Documents: found.Matches,
		SessionID: req.SessionID,
		Tier:      found.Tier,
		Degraded:  res.Degraded,
	}, nil
}

// Direct answers without retrieval, using only the conversation so far.
func (s *Service) Direct(ctx context.Context, req Request) (*Response, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "rag.direct")
	defer span.End()

	res := s.synth.Direct(ctx, answer.DirectRequest{
		Question:  req.Question,
		History:   req.History,
		Images:    req.Images,
		ModelType: req.ModelType,
	})
	span.SetAttributes(attribute.Bool("rag.answer_degraded", res.Degraded))

	s.record(ctx, knowledge.HistoryEntry{
		SessionID:  req.SessionID,
		Question:   req.Question,
		Answer:     res.Text,
		Mode:       knowledge.ModeDirect,
		ImageTypes: knowledge.ImageTypes(req.Images),
	})

	return &Response{
		Answer:    res.Text,
		Documents: []knowledge.Match{},
		SessionID: req.SessionID,
		Mode:      knowledge.ModeDirect,
		Degraded:  res.Degraded,
	}, nil
}

// record writes the exchange. Failures are logged and otherwise ignored.
func (s *Service) record(ctx context.Context, entry knowledge.HistoryEntry) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Error("failed to save chat history", "session", entry.SessionID, "error", err)
	}
}
