// Package dashboard serves the browser chat UI: an embedded page and a
// websocket that answers questions through the rag pipeline.
package dashboard

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/rag"
)

// Asker answers chat questions.
type Asker interface {
	Ask(ctx context.Context, req rag.Request) (*rag.Response, error)
	Direct(ctx context.Context, req rag.Request) (*rag.Response, error)
}

// StatsSource reports knowledge-base contents.
type StatsSource interface {
	Stats(ctx context.Context) (*knowledge.Stats, error)
}

// Dashboard provides the chat page and its websocket.
type Dashboard struct {
	asker    Asker
	stats    StatsSource
	renderer *Renderer
	logger   *slog.Logger
}

// New creates a new Dashboard. stats may be nil.
func New(asker Asker, stats StatsSource, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		asker:    asker,
		stats:    stats,
		renderer: NewRenderer(),
		logger:   logger,
	}
}

// RegisterRoutes mounts all dashboard routes onto the given router. The
// websocket route must not sit behind a request timeout.
func (d *Dashboard) RegisterRoutes(r chi.Router) {
	r.Get("/", d.ServeIndex)
	r.Get("/api/dashboard/stats", d.handleStats)
	r.Get("/ws/chat", d.handleWebSocket)
}
