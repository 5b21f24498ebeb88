package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/kbchat/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing knowledge-base question answering and document search tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(context.Background(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		// stdout carries the protocol; status goes to stderr.
		fmt.Fprintf(os.Stderr, "kbchat MCP server started on stdio (store=%s)\n", describeStore(a))

		srv := mcpserver.NewServer(mcpserver.Deps{
			Asker:    a.rag,
			Embedder: a.embedder,
			Searcher: a.searcher,
			Lister:   a.catalog,
		})
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
