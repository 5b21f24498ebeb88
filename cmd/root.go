package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kbchat/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kbchat",
	Short: "Knowledge-base chat with retrieval-augmented answers",
	Long: `kbchat answers questions from an internal knowledge base. It embeds
each question, finds the closest documents through a chain of search
strategies and asks a generative model for an answer grounded in them.
It serves a REST API, a chat dashboard and MCP tools for AI agents.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		setupLogger(logLevelFromConfig())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// logLevelFromConfig peeks at log_level without failing the command when
// the config cannot be read; loadConfig reports that error later.
func logLevelFromConfig() string {
	if verbose {
		return "debug"
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return ""
	}
	return cfg.LogLevel
}

func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
