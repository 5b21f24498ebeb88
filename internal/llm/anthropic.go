package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider calls the Messages API over plain HTTP. Images are sent
// as base64 image blocks ahead of the question text.
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{apiKey: apiKey, model: model, baseURL: anthropicBaseURL, client: &http.Client{}}
}

// WithBaseURL replaces the API root, e.g. with a test server.
func (p *AnthropicProvider) WithBaseURL(u string) *AnthropicProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) SupportsImages() bool { return true }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	Model      string           `json:"model"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorBody struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildAnthropicRequest joins system messages into the top-level system
// field. max_tokens is mandatory for this API, so zero becomes 4096.
func buildAnthropicRequest(model string, req CompletionRequest) anthropicRequest {
	out := anthropicRequest{Model: model, MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}
	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			out.Messages = append(out.Messages, anthropicMessage{
				Role:    "assistant",
				Content: []anthropicBlock{{Type: "text", Text: msg.Content}},
			})
		case RoleUser:
			blocks := make([]anthropicBlock, 0, len(msg.Images)+1)
			for _, img := range msg.Images {
				blocks = append(blocks, anthropicBlock{Type: "image", Source: &anthropicSource{
					Type:      "base64",
					MediaType: img.MIMEType,
					Data:      base64.StdEncoding.EncodeToString(img.Data),
				}})
			}
			blocks = append(blocks, anthropicBlock{Type: "text", Text: msg.Content})
			out.Messages = append(out.Messages, anthropicMessage{Role: "user", Content: blocks})
		}
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	body, err := json.Marshal(buildAnthropicRequest(model, req))
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		var e anthropicErrorBody
		if json.Unmarshal(raw, &e) == nil && e.Error != nil {
			return nil, fmt.Errorf("anthropic API error (%s): %s", e.Error.Type, e.Error.Message)
		}
		return nil, fmt.Errorf("anthropic returned status %d: %s", httpResp.StatusCode, bytes.TrimSpace(raw))
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}
	var text strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &CompletionResponse{
		Content:      text.String(),
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
