package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kbchat/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize kbchat configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure kbchat and writes the config file. With --sample, three sample FAQ documents are added to the new store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.RunWizard(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", cfgFile)

		sample, _ := cmd.Flags().GetBool("sample")
		if !sample {
			return nil
		}

		ctx := context.Background()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.docs.Seed(ctx)
		if err != nil {
			return fmt.Errorf("adding sample documents: %w", err)
		}
		fmt.Printf("Added %d sample document(s).\n", res.SuccessCount)
		for _, e := range res.Errors {
			fmt.Printf("  %s\n", e)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("sample", false, "add sample FAQ documents after writing the config")
	rootCmd.AddCommand(initCmd)
}
