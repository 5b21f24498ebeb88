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

const googleAPIBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleProvider calls Gemini generateContent over plain HTTP. User images
// travel as inline base64 parts.
type GoogleProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGoogleProvider(apiKey string, model string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: googleAPIBaseURL,
		client:  &http.Client{},
	}
}

// WithBaseURL replaces the API root, e.g. with a test server.
func (p *GoogleProvider) WithBaseURL(u string) *GoogleProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *GoogleProvider) Name() string         { return "google" }
func (p *GoogleProvider) SupportsImages() bool { return true }

type (
	geminiRequest struct {
		Contents          []geminiContent         `json:"contents"`
		SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
		GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	}
	geminiContent struct {
		Role  string       `json:"role,omitempty"`
		Parts []geminiPart `json:"parts"`
	}
	geminiPart struct {
		Text       string      `json:"text,omitempty"`
		InlineData *geminiBlob `json:"inlineData,omitempty"`
	}
	geminiBlob struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
	}
	geminiGenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float64 `json:"temperature"`
	}
)

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// buildGeminiRequest maps chat messages onto Gemini contents. System
// messages become the system instruction and assistant turns use the
// "model" role.
func buildGeminiRequest(req CompletionRequest) geminiRequest {
	out := geminiRequest{
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	var system []geminiPart
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, geminiPart{Text: msg.Content})
		case RoleAssistant:
			out.Contents = append(out.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		case RoleUser:
			parts := []geminiPart{{Text: msg.Content}}
			for _, img := range msg.Images {
				parts = append(parts, geminiPart{InlineData: &geminiBlob{
					MIMEType: img.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(img.Data),
				}})
			}
			out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: parts})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &geminiContent{Parts: system}
	}
	// generateContent rejects an empty contents list.
	if len(out.Contents) == 0 {
		out.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: ""}}}}
	}
	return out
}

func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var resp geminiResponse
	path := "/models/" + model + ":generateContent"
	if err := p.call(ctx, http.MethodPost, path, buildGeminiRequest(req), &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	first := resp.Candidates[0]
	var text strings.Builder
	for _, part := range first.Content.Parts {
		text.WriteString(part.Text)
	}
	out := &CompletionResponse{Content: text.String(), Model: model, FinishReason: first.FinishReason}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens, out.OutputTokens = u.PromptTokenCount, u.CandidatesTokenCount
	}
	return out, nil
}

// ModelInfo is one entry of the Gemini model catalogue.
type ModelInfo struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	Description                string   `json:"description"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// ListModels returns the models the API key can use.
func (p *GoogleProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := p.call(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// call performs one authenticated request. A non-200 reply is reported
// with the API's own error message when it sends one.
func (p *GoogleProvider) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal gemini request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path+"?key="+p.apiKey, body)
	if err != nil {
		return fmt.Errorf("create gemini request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e geminiErrorBody
		if json.Unmarshal(raw, &e) == nil && e.Error != nil {
			return fmt.Errorf("gemini API error (%s): %s", e.Error.Status, e.Error.Message)
		}
		return fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}
