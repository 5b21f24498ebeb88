package llm

import (
	"fmt"
	"os"
)

// DefaultOllamaHost is used when OLLAMA_HOST is unset.
const DefaultOllamaHost = "http://localhost:11434"

// keyedProviders are hosted backends that need only an API key from the
// environment.
var keyedProviders = map[string]struct {
	env string
	new func(key, model string) Provider
}{
	"openai":     {"OPENAI_API_KEY", func(k, m string) Provider { return NewOpenAIProvider(k, m) }},
	"anthropic":  {"ANTHROPIC_API_KEY", func(k, m string) Provider { return NewAnthropicProvider(k, m) }},
	"openrouter": {"OPENROUTER_API_KEY", func(k, m string) Provider { return NewOpenRouterProvider(k, m) }},
	"minimax":    {"MINIMAX_API_KEY", func(k, m string) Provider { return NewMinimaxProvider(k, m) }},
}

// NewProvider builds the backend named by kind: "google" (alias "gemini"),
// "openai", "anthropic", "openrouter", "minimax" or "ollama". Hosted
// backends read their key from the environment and fail when it is missing.
func NewProvider(kind, model string) (Provider, error) {
	switch kind {
	case "google", "gemini":
		key := GoogleAPIKey()
		if key == "" {
			return nil, missingKey("GEMINI_API_KEY")
		}
		return NewGoogleProvider(key, model), nil
	case "ollama":
		return NewOllamaProvider(envOr("OLLAMA_HOST", DefaultOllamaHost), model), nil
	}

	kp, ok := keyedProviders[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported provider type: %s", kind)
	}
	key := os.Getenv(kp.env)
	if key == "" {
		return nil, missingKey(kp.env)
	}
	return kp.new(key, model), nil
}

// GoogleAPIKey prefers GEMINI_API_KEY over the older GOOGLE_API_KEY.
func GoogleAPIKey() string {
	return envOr("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func missingKey(name string) error {
	return fmt.Errorf("%s environment variable is not set", name)
}
