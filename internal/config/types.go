package config

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderGoogle ProviderType = "google"
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"

	// Generation-only providers. Embeddings still come from one of the
	// providers above.
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderMinimax    ProviderType = "minimax"
)

// StoreDriver selects the document store backend.
type StoreDriver string

const (
	StoreSQLite   StoreDriver = "sqlite"
	StorePostgres StoreDriver = "postgres"
)

// IndexType selects the native similarity index used next to SQLite.
// The Postgres store always uses its own match_documents function.
type IndexType string

const (
	IndexNone    IndexType = "none"
	IndexChromem IndexType = "chromem"
	IndexQdrant  IndexType = "qdrant"
)

// Config is the top-level kbchat configuration, corresponding to .kbchat.yml.
type Config struct {
	Provider    ProviderType `yaml:"provider" koanf:"provider"`
	Model       string       `yaml:"model" koanf:"model"`
	MaxTokens   int          `yaml:"max_tokens" koanf:"max_tokens"`
	Temperature float64      `yaml:"temperature" koanf:"temperature"`

	Local     LocalConfig     `yaml:"local" koanf:"local"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Store     StoreConfig     `yaml:"store" koanf:"store"`
	Index     IndexConfig     `yaml:"index" koanf:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	History   HistoryConfig   `yaml:"history" koanf:"history"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Import    ImportConfig    `yaml:"import" koanf:"import"`

	RegenerateIntervalMS int    `yaml:"regenerate_interval_ms" koanf:"regenerate_interval_ms"`
	RateLimitRPM         int    `yaml:"rate_limit_rpm" koanf:"rate_limit_rpm"`
	LogLevel             string `yaml:"log_level" koanf:"log_level"`
}

// LocalConfig describes the locally hosted model used for modelType "ollama".
// An empty Model disables the local path.
type LocalConfig struct {
	BaseURL string `yaml:"base_url" koanf:"base_url"`
	Model   string `yaml:"model" koanf:"model"`
}

// EmbeddingConfig selects the embedding model. Dimensions must match the
// store schema.
type EmbeddingConfig struct {
	Provider   ProviderType `yaml:"provider" koanf:"provider"`
	Model      string       `yaml:"model" koanf:"model"`
	Dimensions int          `yaml:"dimensions" koanf:"dimensions"`
}

// StoreConfig selects where documents and chat history live.
type StoreConfig struct {
	Driver      StoreDriver `yaml:"driver" koanf:"driver"`
	Path        string      `yaml:"path" koanf:"path"`
	DSN         string      `yaml:"dsn" koanf:"dsn"`
	AutoMigrate bool        `yaml:"auto_migrate" koanf:"auto_migrate"`
}

// IndexConfig selects the native similarity index.
type IndexConfig struct {
	Type             IndexType `yaml:"type" koanf:"type"`
	PersistDir       string    `yaml:"persist_dir" koanf:"persist_dir"`
	QdrantAddr       string    `yaml:"qdrant_addr" koanf:"qdrant_addr"`
	QdrantCollection string    `yaml:"qdrant_collection" koanf:"qdrant_collection"`
}

// RetrievalConfig tunes the search tiers.
type RetrievalConfig struct {
	Threshold       float64 `yaml:"threshold" koanf:"threshold"`
	IndexedLimit    int     `yaml:"indexed_limit" koanf:"indexed_limit"`
	ScanLimit       int     `yaml:"scan_limit" koanf:"scan_limit"`
	KeywordLimit    int     `yaml:"keyword_limit" koanf:"keyword_limit"`
	KeywordPageSize int     `yaml:"keyword_page_size" koanf:"keyword_page_size"`
}

// HistoryConfig enables publishing chat history to NATS in addition to the store.
type HistoryConfig struct {
	NATSURL string `yaml:"nats_url" koanf:"nats_url"`
	Subject string `yaml:"subject" koanf:"subject"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// ImportConfig lists markdown directories imported by `kbchat import`.
type ImportConfig struct {
	Dirs    []string `yaml:"dirs" koanf:"dirs"`
	Exclude []string `yaml:"exclude" koanf:"exclude"`
}
