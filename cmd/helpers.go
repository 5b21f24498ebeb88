package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ziadkadry99/kbchat/internal/answer"
	"github.com/ziadkadry99/kbchat/internal/config"
	"github.com/ziadkadry99/kbchat/internal/db"
	"github.com/ziadkadry99/kbchat/internal/documents"
	"github.com/ziadkadry99/kbchat/internal/embeddings"
	"github.com/ziadkadry99/kbchat/internal/history"
	"github.com/ziadkadry99/kbchat/internal/importers"
	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/llm"
	"github.com/ziadkadry99/kbchat/internal/rag"
	"github.com/ziadkadry99/kbchat/internal/retrieval"
	"github.com/ziadkadry99/kbchat/internal/vectordb"
)

// app holds the wired pipeline shared by the server, serve, ask, import
// and regenerate commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	database *db.DB
	catalog  knowledge.Catalog
	embedder *embeddings.Fallback
	searcher *retrieval.Searcher
	rag      *rag.Service
	docs     *documents.Service
	regen    *documents.Regenerator
	sources  *importers.Store
	importer *importers.Importer
	models   documents.ModelLister

	closers []func() error
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `kbchat init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newApp opens the stores and builds every pipeline component from cfg.
// A missing generation API key is not fatal: answers degrade to the
// apology text until it is configured.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: slog.Default()}

	emb, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.embedder = embeddings.NewFallback(emb, cfg.Embedding.Dimensions, a.logger)

	// Import sources always live in SQLite, next to the documents when the
	// sqlite driver is used.
	a.database, err = db.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.database.Close)

	if err := a.openCatalog(ctx, emb); err != nil {
		a.Close()
		return nil, err
	}

	primary, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		a.logger.Warn("generation provider unavailable, answers will degrade", "provider", cfg.Provider, "error", err)
	}
	var local llm.Provider
	if cfg.Local.Model != "" {
		local = llm.NewOllamaProvider(cfg.Local.BaseURL, cfg.Local.Model)
	}
	if primary != nil {
		primary = llm.NewRateLimitedProvider(primary, cfg.RateLimitRPM)
	}
	if cfg.Provider == config.ProviderGoogle {
		if key := llm.GoogleAPIKey(); key != "" {
			a.models = llm.NewGoogleProvider(key, cfg.Model)
		}
	}

	synth := answer.NewSynthesizer(primary, local, answer.Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}, a.logger)

	a.searcher = retrieval.NewDefaultSearcher(a.catalog, cfg.RetrievalOptions(), a.logger)

	sinks := history.Multi{history.NewStoreSink(a.catalog)}
	if cfg.History.NATSURL != "" {
		sink, conn, err := history.Connect(cfg.History.NATSURL, cfg.History.Subject)
		if err != nil {
			a.logger.Warn("history publishing disabled", "url", cfg.History.NATSURL, "error", err)
		} else {
			sinks = append(sinks, sink)
			a.closers = append(a.closers, drainNATS(conn))
		}
	}

	a.rag = rag.NewService(a.embedder, a.searcher, synth, sinks, a.logger)
	a.docs = documents.NewService(a.catalog, a.embedder, a.logger)
	a.regen = documents.NewRegenerator(a.catalog, a.embedder,
		time.Duration(cfg.RegenerateIntervalMS)*time.Millisecond, a.logger)
	a.sources = importers.NewStore(a.database)
	a.importer = importers.NewImporter(a.docs, a.sources, a.logger)

	return a, nil
}

// openCatalog selects the document store and its native index.
func (a *app) openCatalog(ctx context.Context, emb embeddings.Embedder) error {
	cfg := a.cfg
	dims := cfg.Embedding.Dimensions

	if cfg.Store.Driver == config.StorePostgres {
		pg, err := documents.OpenPostgres(ctx, cfg.Store.DSN, dims, cfg.Store.AutoMigrate)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		a.catalog = pg
		return nil
	}

	var index vectordb.Index
	switch cfg.Index.Type {
	case config.IndexChromem:
		ci, err := vectordb.NewChromemIndex(emb)
		if err != nil {
			return fmt.Errorf("creating chromem index: %w", err)
		}
		if dir := cfg.Index.PersistDir; dir != "" {
			if err := ci.Load(dir); err != nil {
				a.logger.Debug("no persisted index loaded", "dir", dir, "error", err)
			}
			a.closers = append(a.closers, func() error {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
				return ci.Persist(dir)
			})
		}
		index = ci
	case config.IndexQdrant:
		qi, err := vectordb.NewQdrantIndex(cfg.Index.QdrantAddr, cfg.Index.QdrantCollection)
		if err != nil {
			return fmt.Errorf("connecting to qdrant: %w", err)
		}
		a.closers = append(a.closers, qi.Close)
		if err := qi.EnsureCollection(ctx, dims); err != nil {
			return err
		}
		index = qi
	}

	store := documents.NewSQLiteStore(a.database, index, dims)
	if index != nil {
		n, err := store.SyncIndex(ctx)
		if err != nil {
			a.logger.Warn("native index sync failed, searches resync or fall back to scan", "error", err)
		} else {
			a.logger.Debug("native index synced", "type", cfg.Index.Type, "documents", n)
		}
	}
	a.catalog = store
	return nil
}

// Close releases everything newApp opened, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func drainNATS(conn *nats.Conn) func() error {
	return func() error { return conn.Drain() }
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.Embedding.Provider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.Embedding.Model
	if model == "" {
		model = config.GetPreset(provider).EmbeddingModel
	}
	dims := cfg.Embedding.Dimensions

	switch provider {
	case config.ProviderGoogle:
		apiKey := llm.GoogleAPIKey()
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required for Google embeddings")
		}
		return embeddings.NewGoogleEmbedder(apiKey, embeddings.GoogleModel(model)).WithDimensions(dims), nil
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			return embeddings.NewOpenAICompatibleEmbedder(baseURL, apiKey, embeddings.OpenAIModel(model), dims), nil
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model), dims), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, dims, cfg.Local.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}

// createLLMProviderFromConfig creates the primary generation provider.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	return llm.NewProvider(string(cfg.Provider), cfg.Model)
}
