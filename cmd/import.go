package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/kbchat/internal/importers"
)

var importCmd = &cobra.Command{
	Use:   "import [dirs...]",
	Short: "Import markdown files into the knowledge base",
	Long: `Imports markdown files from the given directories (or import.dirs from
the config). Each file becomes one document titled by its first heading;
titles that already exist are skipped. With --watch, new and changed files
are imported as they appear.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringSlice("include", nil, "glob patterns to include (default **/*.md, **/*.markdown)")
	importCmd.Flags().StringSlice("exclude", nil, "glob patterns to exclude (adds to import.exclude)")
	importCmd.Flags().Bool("watch", false, "keep running and import files as they change")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	watch, _ := cmd.Flags().GetBool("watch")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dirs := args
	if len(dirs) == 0 {
		dirs = cfg.Import.Dirs
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no directories to import: pass them as arguments or set import.dirs in %s", cfgFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sources := make([]importers.MarkdownConfig, 0, len(dirs))
	for _, dir := range dirs {
		sources = append(sources, importers.MarkdownConfig{
			Root:    dir,
			Include: include,
			Exclude: append(append([]string{}, cfg.Import.Exclude...), exclude...),
		})
	}

	for _, src := range sources {
		res, err := a.importer.Import(ctx, src)
		if err != nil {
			return fmt.Errorf("importing %s: %w", src.Root, err)
		}
		fmt.Printf("%s: %d found, %d imported, %d skipped\n", src.Root, res.ItemsFound, res.ItemsImported, res.ItemsSkipped)
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "  error: %s\n", e)
		}
	}

	if !watch {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		w, err := a.importer.NewWatcher(src)
		if err != nil {
			return fmt.Errorf("watching %s: %w", src.Root, err)
		}
		defer w.Close()
		root := src.Root
		g.Go(func() error {
			return w.Run(gctx, func(item importers.ImportedItem) {
				state := "skipped (title exists)"
				if item.Imported {
					state = "imported"
				}
				fmt.Printf("%s/%s: %s %s\n", root, item.Path, item.Title, state)
			})
		})
	}
	fmt.Fprintln(os.Stderr, "Watching for changes. Press Ctrl+C to stop.")
	return g.Wait()
}
