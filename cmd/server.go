package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kbchat/internal/config"
	"github.com/ziadkadry99/kbchat/internal/dashboard"
	"github.com/ziadkadry99/kbchat/internal/documents"
	"github.com/ziadkadry99/kbchat/internal/importers"
	"github.com/ziadkadry99/kbchat/internal/rag"
	"github.com/ziadkadry99/kbchat/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the knowledge-base chat server",
	Long:  `Starts the kbchat HTTP server with the chat API, document management, markdown imports and the chat dashboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(server.Config{
			Port:     cfg.Server.Port,
			AllowAll: cfg.Server.AllowAllOrigins,
			Health:   a.catalog,
			Logger:   a.logger,
		})
		registerAllRoutes(srv, a)

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "kbchat server v%s starting on port %d\n", Version, cfg.Server.Port)
		fmt.Fprintf(os.Stderr, "  Store: %s\n", describeStore(a))
		if st, err := a.catalog.Stats(ctx); err == nil {
			fmt.Fprintf(os.Stderr, "  Documents: %d (%d with embeddings)\n", st.Documents, st.WithEmbeddings)
		} else {
			fmt.Fprintf(os.Stderr, "  Documents: unavailable (%v)\n", err)
		}

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

// registerAllRoutes wires the API routes under the request timeout and the
// dashboard, whose websocket must outlive it, on the root router.
func registerAllRoutes(srv *server.Server, a *app) {
	api := srv.API()

	rag.RegisterRoutes(api, a.rag, a.logger)

	documents.RegisterRoutes(api, &documents.API{
		Service:     a.docs,
		Regenerator: a.regen,
		Models:      a.models,
		Logger:      a.logger,
	})

	importers.RegisterRoutes(api, a.sources, a.importer, a.logger)

	dash := dashboard.New(a.rag, a.catalog, a.logger)
	dash.RegisterRoutes(srv.Router())
}

func describeStore(a *app) string {
	if a.cfg.Store.Driver == config.StorePostgres {
		return "postgres"
	}
	return fmt.Sprintf("sqlite %s (index: %s)", a.cfg.Store.Path, a.cfg.Index.Type)
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 3000, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
