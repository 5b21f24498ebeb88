// Package answer turns retrieved documents and conversation history into a
// model answer. Model failures never escape: they become a fixed apology.
package answer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/llm"
)

// Model selectors accepted in requests. An empty value means ModelPrimary.
const (
	ModelPrimary = "gemini"
	ModelLocal   = "ollama"
)

var errLocalNotConfigured = errors.New("local model is not configured")

// Result is the outcome of a synthesis call. Degraded is set when the model
// failed and Text holds the apology string.
type Result struct {
	Text     string
	Degraded bool
}

// GroundedRequest asks for an answer based on matched documents.
type GroundedRequest struct {
	Question  string
	Documents []knowledge.Match
	History   []knowledge.Turn
	Images    []knowledge.Image
	ModelType string
}

// DirectRequest asks for an answer without retrieval.
type DirectRequest struct {
	Question  string
	History   []knowledge.Turn
	Images    []knowledge.Image
	ModelType string
}

// Options tunes the generation calls.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Synthesizer calls the primary generative provider, or the local one when
// a request selects it.
type Synthesizer struct {
	primary llm.Provider
	local   llm.Provider
	opts    Options
	logger  *slog.Logger
}

// NewSynthesizer creates a Synthesizer. local may be nil, in which case
// requests for the local model degrade to the apology.
func NewSynthesizer(primary, local llm.Provider, opts Options, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{primary: primary, local: local, opts: opts, logger: logger}
}

// Grounded answers from the supplied documents.
func (s *Synthesizer) Grounded(ctx context.Context, req GroundedRequest) Result {
	var msgs []llm.Message
	var provider llm.Provider
	if req.ModelType == ModelLocal {
		provider = s.local
		msgs = LocalMessages(localGroundedSystem(req.Documents), req.Question, req.History)
	} else {
		provider = s.primary
		msgs = []llm.Message{{
			Role:    llm.RoleUser,
			Content: GroundedPrompt(req.Question, req.Documents, req.History),
		}}
	}
	return s.generate(ctx, "grounded", provider, msgs, req.Images, GroundedApology)
}

// Direct answers from general knowledge and the conversation so far.
func (s *Synthesizer) Direct(ctx context.Context, req DirectRequest) Result {
	var msgs []llm.Message
	var provider llm.Provider
	if req.ModelType == ModelLocal {
		provider = s.local
		msgs = LocalMessages(localDirectSystem(), req.Question, req.History)
	} else {
		provider = s.primary
		msgs = []llm.Message{{
			Role:    llm.RoleUser,
			Content: DirectPrompt(req.Question, req.History),
		}}
	}
	return s.generate(ctx, "direct", provider, msgs, req.Images, DirectApology)
}

func (s *Synthesizer) generate(ctx context.Context, kind string, provider llm.Provider, msgs []llm.Message, images []knowledge.Image, apology string) Result {
	if provider == nil {
		s.logger.Error("answer generation failed", "kind", kind, "error", errLocalNotConfigured)
		return Result{Text: apology, Degraded: true}
	}

	if len(images) > 0 {
		if provider.SupportsImages() {
			last := &msgs[len(msgs)-1]
			for _, img := range images {
				last.Images = append(last.Images, llm.Image{MIMEType: img.MIMEType, Data: img.Data})
			}
		} else {
			s.logger.Warn("provider does not accept images, ignoring attachments",
				"provider", provider.Name(), "images", len(images))
		}
	}

	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		s.logger.Error("answer generation failed", "kind", kind, "provider", provider.Name(), "error", err)
		return Result{Text: apology, Degraded: true}
	}
	s.logger.Debug("answer generated", "kind", kind, "provider", provider.Name(), "model", resp.Model,
		"input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens,
		"estimated_cost_usd", llm.EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens))
	return Result{Text: resp.Content}
}
