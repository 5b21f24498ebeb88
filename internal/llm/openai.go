package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
// The same client drives any OpenAI-compatible server, including Ollama's
// /v1 endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
	vision bool
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
		name:   "openai",
		vision: true,
	}
}

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	minimaxBaseURL    = "https://api.minimax.io/v1"
)

// newCompatibleProvider drives an OpenAI-compatible server at baseURL.
func newCompatibleProvider(name, baseURL, apiKey, model string, vision bool) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model, name: name, vision: vision}
}

// NewOllamaProvider talks to a local Ollama server through its
// OpenAI-compatible API. Images are not forwarded.
func NewOllamaProvider(host string, model string) *OpenAIProvider {
	return newCompatibleProvider("ollama", strings.TrimRight(host, "/")+"/v1", "ollama", model, false)
}

// NewOpenRouterProvider routes through OpenRouter. Model names carry the
// upstream vendor, e.g. "google/gemini-2.5-flash".
func NewOpenRouterProvider(apiKey, model string) *OpenAIProvider {
	return newCompatibleProvider("openrouter", openRouterBaseURL, apiKey, model, true)
}

// NewMinimaxProvider uses MiniMax's text-only chat endpoint.
func NewMinimaxProvider(apiKey, model string) *OpenAIProvider {
	return newCompatibleProvider("minimax", minimaxBaseURL, apiKey, model, false)
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) SupportsImages() bool {
	return p.vision
}

func (p *OpenAIProvider) toMessage(msg Message) openai.ChatCompletionMessage {
	if !p.vision || len(msg.Images) == 0 || msg.Role != RoleUser {
		return openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content}
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: msg.Content}}
	for _, img := range msg.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)),
			},
		})
	}
	return openai.ChatCompletionMessage{Role: string(msg.Role), MultiContent: parts}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, p.toMessage(msg))
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	return &CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}
