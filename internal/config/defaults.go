package config

import "github.com/ziadkadry99/kbchat/internal/retrieval"

// Preset describes the models to use for a provider.
type Preset struct {
	Model             string
	EmbeddingProvider ProviderType
	EmbeddingModel    string
	Dimensions        int
}

var presets = map[ProviderType]Preset{
	ProviderGoogle: {Model: "gemini-2.5-flash", EmbeddingProvider: ProviderGoogle, EmbeddingModel: "text-embedding-004", Dimensions: 768},
	ProviderOpenAI: {Model: "gpt-4o-mini", EmbeddingProvider: ProviderOpenAI, EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderOllama: {Model: "gemma3:4b", EmbeddingProvider: ProviderOllama, EmbeddingModel: "nomic-embed-text", Dimensions: 768},

	ProviderAnthropic:  {Model: "claude-haiku-4-5", EmbeddingProvider: ProviderOllama, EmbeddingModel: "nomic-embed-text", Dimensions: 768},
	ProviderOpenRouter: {Model: "google/gemini-2.5-flash", EmbeddingProvider: ProviderOllama, EmbeddingModel: "nomic-embed-text", Dimensions: 768},
	ProviderMinimax:    {Model: "MiniMax-M1", EmbeddingProvider: ProviderOllama, EmbeddingModel: "nomic-embed-text", Dimensions: 768},
}

// DefaultConfigFile is the config file read when --config is not given.
const DefaultConfigFile = ".kbchat.yml"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	preset := GetPreset(ProviderGoogle)
	opts := retrieval.DefaultOptions()
	return &Config{
		Provider:    ProviderGoogle,
		Model:       preset.Model,
		MaxTokens:   2048,
		Temperature: 0.7,
		Local: LocalConfig{
			BaseURL: "http://localhost:11434",
			Model:   "gemma3:4b",
		},
		Embedding: EmbeddingConfig{
			Provider:   preset.EmbeddingProvider,
			Model:      preset.EmbeddingModel,
			Dimensions: preset.Dimensions,
		},
		Store: StoreConfig{
			Driver:      StoreSQLite,
			Path:        ".kbchat/kbchat.db",
			AutoMigrate: true,
		},
		Index: IndexConfig{
			Type:             IndexChromem,
			QdrantAddr:       "localhost:6334",
			QdrantCollection: "kbchat_documents",
		},
		Retrieval: RetrievalConfig{
			Threshold:       opts.Threshold,
			IndexedLimit:    opts.IndexedLimit,
			ScanLimit:       opts.ScanLimit,
			KeywordLimit:    opts.KeywordLimit,
			KeywordPageSize: opts.KeywordPageSize,
		},
		History: HistoryConfig{
			Subject: "kbchat.history",
		},
		Server: ServerConfig{
			Port:            3000,
			AllowAllOrigins: true,
		},
		RegenerateIntervalMS: 100,
		LogLevel:             "info",
	}
}

// GetPreset returns the preset for the given provider.
// Returns the Google preset if the provider is unknown.
func GetPreset(provider ProviderType) Preset {
	if p, ok := presets[provider]; ok {
		return p
	}
	return presets[ProviderGoogle]
}

// RetrievalOptions converts the retrieval section into search options,
// keeping defaults for unset fields.
func (c *Config) RetrievalOptions() retrieval.Options {
	opts := retrieval.DefaultOptions()
	r := c.Retrieval
	if r.Threshold > 0 {
		opts.Threshold = r.Threshold
	}
	if r.IndexedLimit > 0 {
		opts.IndexedLimit = r.IndexedLimit
	}
	if r.ScanLimit > 0 {
		opts.ScanLimit = r.ScanLimit
	}
	if r.KeywordLimit > 0 {
		opts.KeywordLimit = r.KeywordLimit
	}
	if r.KeywordPageSize > 0 {
		opts.KeywordPageSize = r.KeywordPageSize
	}
	return opts
}
