package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kbchat/internal/progress"
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Generate embeddings for documents that lack one",
	Long:  `Embeds every stored document whose embedding is missing, one at a time. Documents whose embedding fails are skipped and reported in the log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.regen.Run(ctx, progress.NewReporter("Embedding documents"))
		if err != nil {
			return fmt.Errorf("regenerating embeddings: %w", err)
		}
		if res.Total == 0 {
			fmt.Println("No documents need embedding generation.")
			return nil
		}
		fmt.Printf("Generated embeddings for %d of %d documents.\n", res.Updated, res.Total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regenerateCmd)
}
