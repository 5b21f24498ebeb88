package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Err      error
	ProvName string
	Vision   bool
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) SupportsImages() bool {
	return m.Vision
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- Tests ---

func TestMockProviderRecordsCalls(t *testing.T) {
	mock := NewMockProvider("test")

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := mock.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("MINIMAX_API_KEY", "")

	for _, p := range []string{"openai", "google", "gemini", "anthropic", "openrouter", "minimax"} {
		if _, err := NewProvider(p, "some-model"); err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	if _, err := NewProvider("cohere", "some-model"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryCreatesOllamaWithoutAPIKey(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	provider, err := NewProvider("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "ollama" {
		t.Errorf("expected name 'ollama', got %q", provider.Name())
	}
	if provider.SupportsImages() {
		t.Error("ollama provider should not accept images")
	}
}

func TestFactoryPrefersGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	if got := GoogleAPIKey(); got != "gemini-key" {
		t.Errorf("GoogleAPIKey() = %q, want gemini-key", got)
	}

	t.Setenv("GEMINI_API_KEY", "")
	if got := GoogleAPIKey(); got != "google-key" {
		t.Errorf("GoogleAPIKey() = %q, want google-key", got)
	}

	provider, err := NewProvider("gemini", "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "google" || !provider.SupportsImages() {
		t.Errorf("unexpected provider %q", provider.Name())
	}
}

func TestGoogleProviderSendsInlineImages(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"こん"},{"text":"にちは"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2}}`))
	}))
	defer srv.Close()

	p := NewGoogleProvider("k", "gemini-test").WithBaseURL(srv.URL)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "preamble"},
			{Role: RoleUser, Content: "what is this?", Images: []Image{{MIMEType: "image/png", Data: []byte{1, 2, 3}}}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "こんにちは" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.InputTokens != 3 || resp.OutputTokens != 2 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "preamble" {
		t.Errorf("system instruction not sent: %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 1 || len(got.Contents[0].Parts) != 2 {
		t.Fatalf("expected one user content with 2 parts, got %+v", got.Contents)
	}
	inline := got.Contents[0].Parts[1].InlineData
	if inline == nil || inline.MIMEType != "image/png" || inline.Data != "AQID" {
		t.Errorf("inline data = %+v", inline)
	}
}

func TestGoogleProviderReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad key","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	p := NewGoogleProvider("k", "m").WithBaseURL(srv.URL)
	_, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestGoogleProviderReportsBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	p := NewGoogleProvider("k", "m").WithBaseURL(srv.URL)
	_, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if err == nil || !strings.Contains(err.Error(), "SAFETY") {
		t.Errorf("expected block reason in error, got %v", err)
	}
}

func TestBuildGeminiRequestMapsRoles(t *testing.T) {
	got := buildGeminiRequest(CompletionRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "q1"},
			{Role: RoleAssistant, Content: "a1"},
			{Role: RoleUser, Content: "q2"},
		},
		MaxTokens: 300,
	})
	if got.SystemInstruction != nil {
		t.Errorf("unexpected system instruction %+v", got.SystemInstruction)
	}
	roles := make([]string, len(got.Contents))
	for i, c := range got.Contents {
		roles[i] = c.Role
	}
	if strings.Join(roles, ",") != "user,model,user" {
		t.Errorf("roles = %v", roles)
	}
	if got.GenerationConfig.MaxOutputTokens != 300 {
		t.Errorf("max tokens = %d", got.GenerationConfig.MaxOutputTokens)
	}

	empty := buildGeminiRequest(CompletionRequest{Messages: []Message{{Role: RoleSystem, Content: "s"}}})
	if len(empty.Contents) != 1 || empty.Contents[0].Role != "user" {
		t.Errorf("expected placeholder user content, got %+v", empty.Contents)
	}
}

func TestGoogleListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"models/gemini-2.0-flash","displayName":"Gemini 2.0 Flash","supportedGenerationMethods":["generateContent"]}]}`))
	}))
	defer srv.Close()

	models, err := NewGoogleProvider("k", "").WithBaseURL(srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0].DisplayName != "Gemini 2.0 Flash" {
		t.Errorf("models = %+v", models)
	}
}

func TestOllamaProviderDropsImages(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","model":"llama3","choices":[{"index":0,"message":{"role":"assistant","content":"local answer"},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "q", Images: []Image{{MIMEType: "image/png", Data: []byte{1}}}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "local answer" {
		t.Errorf("content = %q", resp.Content)
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %v", body["messages"])
	}
	if _, ok := msgs[0].(map[string]any)["content"].(string); !ok {
		t.Errorf("expected plain string content, got %v", msgs[0])
	}
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60)

	resp, err := rl.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := NewMockProvider("test")
	// Allow only 2 requests per minute.
	rl := NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req := CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hello"}}}

	for i := 0; i < 2; i++ {
		if _, err := rl.Complete(ctx, req); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	if _, err := rl.Complete(ctx, req); err == nil {
		t.Error("expected error due to rate limiting + context timeout")
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 calls to reach the provider, got %d", mock.CallCount())
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	mock := NewMockProvider("test")
	if p := NewRateLimitedProvider(mock, 0); p != Provider(mock) {
		t.Error("rpm 0 should return the provider unwrapped")
	}
}

func TestHasImages(t *testing.T) {
	req := CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}}
	if req.HasImages() {
		t.Error("expected no images")
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Images: []Image{{MIMEType: "image/jpeg"}}})
	if !req.HasImages() {
		t.Error("expected images")
	}
}

func TestFactoryHostedProviders(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "a")
	t.Setenv("OPENROUTER_API_KEY", "o")
	t.Setenv("MINIMAX_API_KEY", "m")

	tests := []struct {
		kind   string
		images bool
	}{
		{"anthropic", true},
		{"openrouter", true},
		{"minimax", false},
	}
	for _, tt := range tests {
		p, err := NewProvider(tt.kind, "some-model")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.kind, err)
		}
		if p.Name() != tt.kind || p.SupportsImages() != tt.images {
			t.Errorf("%s: name=%q images=%v", tt.kind, p.Name(), p.SupportsImages())
		}
	}
}

func TestAnthropicProviderSendsImageBlocks(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"content":[{"type":"text","text":"9時から"},{"type":"text","text":"18時です"}],"model":"claude-haiku-4-5","stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":5}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", "claude-haiku-4-5").WithBaseURL(srv.URL)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "社内規定に基づいて回答"},
			{Role: RoleUser, Content: "勤務時間は？", Images: []Image{{MIMEType: "image/png", Data: []byte{1, 2, 3}}}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "9時から18時です" || resp.InputTokens != 12 || resp.OutputTokens != 5 {
		t.Errorf("unexpected response %+v", resp)
	}

	if got.System != "社内規定に基づいて回答" {
		t.Errorf("system = %q", got.System)
	}
	if got.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, want default 4096", got.MaxTokens)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("expected one user message with 2 blocks, got %+v", got.Messages)
	}
	img := got.Messages[0].Content[0]
	if img.Type != "image" || img.Source == nil || img.Source.Data != "AQID" || img.Source.MediaType != "image/png" {
		t.Errorf("image block = %+v", img)
	}
	if txt := got.Messages[0].Content[1]; txt.Type != "text" || txt.Text != "勤務時間は？" {
		t.Errorf("text block = %+v", txt)
	}
}

func TestAnthropicProviderReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropicProvider("k", "m").WithBaseURL(srv.URL).Complete(context.Background(),
		CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if err == nil || !strings.Contains(err.Error(), "invalid x-api-key") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		model string
		want  float64
	}{
		{"gpt-4o-mini", 0.15 + 0.60},
		{"gpt-4o-mini-2024-07-18", 0.15 + 0.60},
		{"google/gemini-2.0-flash", 0.10 + 0.40},
		{"claude-haiku-4-5-20251001", 1.00 + 5.00},
		{"gemma3:4b", 0},
	}
	for _, tt := range tests {
		got := EstimateCost(tt.model, 1_000_000, 1_000_000)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("EstimateCost(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
