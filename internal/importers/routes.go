package importers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the import sources API routes.
func RegisterRoutes(r chi.Router, store *Store, importer *Importer, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Route("/api/imports", func(r chi.Router) {
		r.Get("/", handleList(store, logger))
		r.Post("/", handleCreate(store, logger))
		r.Get("/{id}", handleGetByID(store))
		r.Delete("/{id}", handleDelete(store))
		r.Post("/{id}/run", handleRun(importer, logger))
	})
}

func handleList(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := store.List(r.Context())
		if err != nil {
			logger.Error("listing import sources failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list import sources")
			return
		}
		if sources == nil {
			sources = []ImportSource{}
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

func handleCreate(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string         `json:"name"`
			Config MarkdownConfig `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		created, err := store.Create(r.Context(), req.Name, req.Config)
		if errors.Is(err, ErrInvalidSource) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			logger.Error("creating import source failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to create import source")
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetByID(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if src == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, src)
	}
}

func handleDelete(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.Delete(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRun(importer *Importer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := importer.RunSource(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if err != nil {
			logger.Error("import run failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
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
