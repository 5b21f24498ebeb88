package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != ProviderGoogle {
		t.Errorf("expected default provider %q, got %q", ProviderGoogle, cfg.Provider)
	}
	if cfg.Model != "gemini-2.5-flash" {
		t.Errorf("expected default model gemini-2.5-flash, got %q", cfg.Model)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected 768 embedding dimensions, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Store.Driver != StoreSQLite {
		t.Errorf("expected sqlite store, got %q", cfg.Store.Driver)
	}
	if cfg.Retrieval.Threshold != 0.1 || cfg.Retrieval.IndexedLimit != 5 || cfg.Retrieval.ScanLimit != 3 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Server.Port)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test.kbchat.yml")

	original := DefaultConfig()
	original.Provider = ProviderOpenAI
	original.Model = "gpt-4o"
	original.Store = StoreConfig{Driver: StorePostgres, DSN: "postgres://db/kb", AutoMigrate: false}
	original.Index.Type = IndexQdrant
	original.History.NATSURL = "nats://localhost:4222"
	original.Import.Dirs = []string{"docs/faq", "docs/hr"}
	original.RateLimitRPM = 30

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Provider != original.Provider {
		t.Errorf("provider: got %q, want %q", loaded.Provider, original.Provider)
	}
	if loaded.Model != original.Model {
		t.Errorf("model: got %q, want %q", loaded.Model, original.Model)
	}
	if loaded.Store != original.Store {
		t.Errorf("store: got %+v, want %+v", loaded.Store, original.Store)
	}
	if loaded.Index.Type != IndexQdrant {
		t.Errorf("index type: got %q", loaded.Index.Type)
	}
	if loaded.History.NATSURL != original.History.NATSURL {
		t.Errorf("nats url: got %q", loaded.History.NATSURL)
	}
	if loaded.RateLimitRPM != 30 {
		t.Errorf("rate_limit_rpm: got %d", loaded.RateLimitRPM)
	}
	if len(loaded.Import.Dirs) != 2 || loaded.Import.Dirs[1] != "docs/hr" {
		t.Errorf("import dirs: got %v", loaded.Import.Dirs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Provider != ProviderGoogle {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("KBCHAT_PROVIDER", "openai")
	t.Setenv("KBCHAT_STORE__DRIVER", "postgres")
	t.Setenv("KBCHAT_SERVER__PORT", "8080")
	t.Setenv("KBCHAT_SERVER__ALLOW_ALL_ORIGINS", "false")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Provider != ProviderOpenAI {
		t.Errorf("env override failed: got %q, want %q", loaded.Provider, ProviderOpenAI)
	}
	if loaded.Store.Driver != StorePostgres {
		t.Errorf("nested env override failed: got %q", loaded.Store.Driver)
	}
	if loaded.Server.Port != 8080 || loaded.Server.AllowAllOrigins {
		t.Errorf("server overrides failed: %+v", loaded.Server)
	}
	if loaded.Store.Path != DefaultConfig().Store.Path {
		t.Errorf("unrelated fields should keep their values, got %q", loaded.Store.Path)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"KBCHAT_MODEL":                    "model",
		"KBCHAT_STORE__DSN":               "store.dsn",
		"KBCHAT_INDEX__QDRANT_ADDR":       "index.qdrant_addr",
		"KBCHAT_REGENERATE_INTERVAL_MS":   "regenerate_interval_ms",
		"KBCHAT_RETRIEVAL__KEYWORD_LIMIT": "retrieval.keyword_limit",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty provider", func(c *Config) { c.Provider = "" }},
		{"invalid provider", func(c *Config) { c.Provider = "cohere" }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"invalid embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"generation-only embedding provider", func(c *Config) { c.Embedding.Provider = ProviderAnthropic }},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"invalid driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = StorePostgres }},
		{"invalid index", func(c *Config) { c.Index.Type = "faiss" }},
		{"qdrant without addr", func(c *Config) { c.Index.Type = IndexQdrant; c.Index.QdrantAddr = "" }},
		{"threshold above one", func(c *Config) { c.Retrieval.Threshold = 1.5 }},
		{"negative rpm", func(c *Config) { c.RateLimitRPM = -1 }},
		{"negative interval", func(c *Config) { c.RegenerateIntervalMS = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGetPreset(t *testing.T) {
	p := GetPreset(ProviderOpenAI)
	if p.EmbeddingModel != "text-embedding-3-small" || p.Dimensions != 1536 {
		t.Errorf("unexpected openai preset: %+v", p)
	}

	p = GetPreset(ProviderOllama)
	if p.EmbeddingProvider != ProviderOllama {
		t.Errorf("expected ollama embeddings, got %q", p.EmbeddingProvider)
	}

	p = GetPreset("unknown")
	if p.Model != "gemini-2.5-flash" {
		t.Errorf("expected fallback to gemini, got %q", p.Model)
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := DefaultConfig()
	applyPreset(cfg, ProviderOpenAI)
	if cfg.Model != "gpt-4o-mini" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("preset not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("preset config should validate: %v", err)
	}
}

func TestApplyGenerationOnlyPreset(t *testing.T) {
	for _, p := range []ProviderType{ProviderAnthropic, ProviderOpenRouter, ProviderMinimax} {
		cfg := DefaultConfig()
		applyPreset(cfg, p)
		if cfg.Embedding.Provider != ProviderOllama {
			t.Errorf("%s: expected local embeddings, got %q", p, cfg.Embedding.Provider)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: preset config should validate: %v", p, err)
		}
	}
}

func TestRetrievalOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retrieval = RetrievalConfig{Threshold: 0.3, ScanLimit: 10}

	opts := cfg.RetrievalOptions()
	if opts.Threshold != 0.3 || opts.ScanLimit != 10 {
		t.Errorf("overrides not applied: %+v", opts)
	}
	if opts.IndexedLimit != 5 || opts.KeywordPageSize != 5 {
		t.Errorf("unset fields should keep defaults: %+v", opts)
	}
}

func TestAPIKeyEnvVar(t *testing.T) {
	tests := []struct {
		provider ProviderType
		want     string
	}{
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderGoogle, "GEMINI_API_KEY"},
		{ProviderOllama, ""},
		{ProviderAnthropic, "ANTHROPIC_API_KEY"},
		{ProviderOpenRouter, "OPENROUTER_API_KEY"},
		{ProviderMinimax, "MINIMAX_API_KEY"},
	}
	for _, tt := range tests {
		if got := APIKeyEnvVar(tt.provider); got != tt.want {
			t.Errorf("APIKeyEnvVar(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestValidatePort(t *testing.T) {
	for _, ok := range []string{"80", "3000", "65535"} {
		if err := validatePort(ok); err != nil {
			t.Errorf("validatePort(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "0", "abc", "70000"} {
		if err := validatePort(bad); err == nil {
			t.Errorf("validatePort(%q) should fail", bad)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" docs/faq , docs/hr ", []string{"docs/faq", "docs/hr"}},
		{"", nil},
		{"  ,  , ", nil},
	}
	for _, tt := range tests {
		got := splitAndTrim(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitAndTrim(%q) len = %d, want %d", tt.input, len(got), len(tt.want))
			continue
		}
		for i, v := range got {
			if v != tt.want[i] {
				t.Errorf("splitAndTrim(%q)[%d] = %q, want %q", tt.input, i, v, tt.want[i])
			}
		}
	}
}
