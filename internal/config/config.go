package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: KBCHAT_STORE__DRIVER sets store.driver.
const EnvPrefix = "KBCHAT_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (KBCHAT_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps KBCHAT_SERVER__ALLOW_ALL_ORIGINS to server.allow_all_origins.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderGoogle:     true,
	ProviderOpenAI:     true,
	ProviderOllama:     true,
	ProviderAnthropic:  true,
	ProviderOpenRouter: true,
	ProviderMinimax:    true,
}

var validEmbeddingProviders = map[ProviderType]bool{
	ProviderGoogle: true,
	ProviderOpenAI: true,
	ProviderOllama: true,
}

var validDrivers = map[StoreDriver]bool{
	StoreSQLite:   true,
	StorePostgres: true,
}

var validIndexes = map[IndexType]bool{
	"":           true,
	IndexNone:    true,
	IndexChromem: true,
	IndexQdrant:  true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of google, openai, ollama, anthropic, openrouter, minimax", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if !validEmbeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of google, openai, ollama", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}

	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("invalid store.driver %q: must be sqlite or postgres", c.Store.Driver)
	}
	if c.Store.Driver == StoreSQLite && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for sqlite")
	}
	if c.Store.Driver == StorePostgres && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for postgres")
	}

	if !validIndexes[c.Index.Type] {
		return fmt.Errorf("invalid index.type %q: must be none, chromem or qdrant", c.Index.Type)
	}
	if c.Index.Type == IndexQdrant && c.Index.QdrantAddr == "" {
		return fmt.Errorf("index.qdrant_addr is required for qdrant")
	}

	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be between 0 and 1")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("rate_limit_rpm must be non-negative")
	}
	if c.RegenerateIntervalMS < 0 {
		return fmt.Errorf("regenerate_interval_ms must be non-negative")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GEMINI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderMinimax:
		return "MINIMAX_API_KEY"
	default:
		return ""
	}
}
