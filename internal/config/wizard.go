package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to kbchat! Let's configure your knowledge base.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"google", "openai", "ollama", "anthropic", "openrouter", "minimax"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	applyPreset(cfg, ProviderType(providerStr))

	localPrompt := promptui.Prompt{
		Label:   "Local Ollama model for modelType=ollama (blank to disable)",
		Default: cfg.Local.Model,
	}
	if cfg.Local.Model, err = localPrompt.Run(); err != nil {
		return nil, fmt.Errorf("local model: %w", err)
	}

	storePrompt := promptui.Select{
		Label: "Select document store",
		Items: []string{"sqlite", "postgres"},
	}
	_, driver, err := storePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("store selection: %w", err)
	}
	cfg.Store.Driver = StoreDriver(driver)

	if cfg.Store.Driver == StorePostgres {
		dsnPrompt := promptui.Prompt{
			Label:   "Postgres connection string",
			Default: "postgres://localhost:5432/kbchat",
		}
		if cfg.Store.DSN, err = dsnPrompt.Run(); err != nil {
			return nil, fmt.Errorf("postgres dsn: %w", err)
		}
		cfg.Index.Type = IndexNone
	} else {
		indexPrompt := promptui.Select{
			Label: "Select similarity index",
			Items: []string{"chromem", "qdrant", "none"},
		}
		_, idx, err := indexPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("index selection: %w", err)
		}
		cfg.Index.Type = IndexType(idx)

		if cfg.Index.Type == IndexQdrant {
			addrPrompt := promptui.Prompt{Label: "Qdrant gRPC address", Default: cfg.Index.QdrantAddr}
			if cfg.Index.QdrantAddr, err = addrPrompt.Run(); err != nil {
				return nil, fmt.Errorf("qdrant address: %w", err)
			}
		}
	}

	portPrompt := promptui.Prompt{
		Label:    "HTTP port",
		Default:  strconv.Itoa(cfg.Server.Port),
		Validate: validatePort,
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	dirsPrompt := promptui.Prompt{
		Label:   "Markdown directories to import (comma-separated, blank for none)",
		Default: "",
	}
	dirsStr, err := dirsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("import dirs: %w", err)
	}
	cfg.Import.Dirs = splitAndTrim(dirsStr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if envVar := APIKeyEnvVar(cfg.Provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment or .env before running kbchat server.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// applyPreset switches cfg to provider, including its embedding model.
func applyPreset(cfg *Config, provider ProviderType) {
	p := GetPreset(provider)
	cfg.Provider = provider
	cfg.Model = p.Model
	cfg.Embedding = EmbeddingConfig{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		Dimensions: p.Dimensions,
	}
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid port")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
