package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/llm"
)

// ModelLister lists the generative models available to the server.
type ModelLister interface {
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
}

// API bundles what the document management routes need.
type API struct {
	Service     *Service
	Regenerator *Regenerator
	// Models may be nil when no API key is configured.
	Models ModelLister
	Logger *slog.Logger
}

// RegisterRoutes mounts the document management, sample data, status and
// model listing routes.
func RegisterRoutes(r chi.Router, api *API) {
	if api.Logger == nil {
		api.Logger = slog.Default()
	}
	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/", handleCreate(api))
		r.Get("/", handleList(api))
		r.Put("/", handleRegenerate(api))
	})
	r.Post("/api/init", handleInit(api))
	r.Get("/api/status", handleStatus(api))
	r.Get("/api/models", handleModels(api))
}

type createRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

type documentJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

func toJSON(d knowledge.Document) documentJSON {
	return documentJSON{ID: d.ID, Title: d.Title, Content: d.Content, Source: d.Source, CreatedAt: d.CreatedAt}
}

func handleCreate(api *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Title and content are required")
			return
		}

		doc, err := api.Service.Add(r.Context(), knowledge.Document{
			Title:   req.Title,
			Content: req.Content,
			Source:  req.Source,
		})
		if errors.Is(err, knowledge.ErrInvalidDocument) {
			writeError(w, http.StatusBadRequest, "Title and content are required")
			return
		}
		if err != nil {
			api.Logger.Error("failed to add document", "title", req.Title, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to add document")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":       "Document added successfully",
			"document":      toJSON(*doc),
			"has_embedding": doc.HasEmbedding(),
		})
	}
}

func handleList(api *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := api.Service.Catalog().ListDocuments(r.Context())
		if err != nil {
			api.Logger.Error("failed to list documents", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list documents")
			return
		}
		out := make([]documentJSON, 0, len(docs))
		for _, d := range docs {
			out = append(out, toJSON(d))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"documents": out})
	}
}

func handleRegenerate(api *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RegenerateAll bool `json:"regenerateAll"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.RegenerateAll {
			writeError(w, http.StatusBadRequest, "regenerateAll flag is required")
			return
		}

		res, err := api.Regenerator.Run(r.Context(), nil)
		if err != nil {
			api.Logger.Error("embedding regeneration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to regenerate embeddings")
			return
		}

		msg := fmt.Sprintf("Successfully updated %d documents", res.Updated)
		if res.Total == 0 {
			msg = "No documents need embedding generation"
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": msg,
			"updated": res.Updated,
			"total":   res.Total,
		})
	}
}

func handleInit(api *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := api.Service.Seed(r.Context())
		if errors.Is(err, knowledge.ErrStoreUnavailable) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "データベーステーブルが見つかりません",
				"message": "ドキュメントストアのスキーマを作成してから再度実行してください",
				"details": err.Error(),
			})
			return
		}
		if err != nil {
			api.Logger.Error("sample data initialization failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		body := map[string]interface{}{
			"message":      fmt.Sprintf("Initialization completed. %d documents added.", res.SuccessCount),
			"successCount": res.SuccessCount,
		}
		if len(res.Errors) > 0 {
			body["errors"] = res.Errors
		}
		writeJSON(w, http.StatusOK, body)
	}
}

type sampleJSON struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Source       string `json:"source"`
	HasEmbedding bool   `json:"has_embedding"`
}

// indexProbe is a unit vector along the first axis. A zero vector has no
// direction, so cosine scoring against it is undefined.
func indexProbe(dims int) []float32 {
	probe := make([]float32, max(dims, 1))
	probe[0] = 1
	return probe
}

func handleStatus(api *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog := api.Service.Catalog()
		stats, err := catalog.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"database_status": "unavailable",
				"errors":          map[string]string{"documents": err.Error()},
			})
			return
		}

		samples := make([]sampleJSON, 0, len(stats.Sample))
		for _, d := range stats.Sample {
			samples = append(samples, sampleJSON{ID: d.ID, Title: d.Title, Source: d.Source, HasEmbedding: d.HasEmbedding()})
		}

		_, indexErr := catalog.SearchIndexed(r.Context(), indexProbe(api.Service.embedder.Dimensions()), 0.1, 1)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"database_status": "connected",
			"documents": map[string]interface{}{
				"count":          stats.Documents,
				"has_embeddings": stats.WithEmbeddings,
				"sample":         samples,
			},
			"chat_history": map[string]int{"count": stats.RecentHistory},
			"functions":    map[string]bool{"match_documents_available": indexErr == nil},
		})
	}
}

func handleModels(api *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyStatus := "configured"
		if api.Models == nil {
			keyStatus = "missing"
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":          "Failed to list models",
				"details":        "GEMINI_API_KEY is not set",
				"api_key_status": keyStatus,
			})
			return
		}

		models, err := api.Models.ListModels(r.Context())
		if err != nil {
			api.Logger.Error("model listing failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":          "Failed to list models",
				"details":        err.Error(),
				"api_key_status": keyStatus,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"api_key_status":   keyStatus,
			"available_models": models,
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
