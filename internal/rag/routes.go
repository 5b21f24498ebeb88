package rag

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

// RegisterRoutes mounts the chat API routes.
func RegisterRoutes(r chi.Router, svc *Service, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Post("/api/chat", handleChat(svc, logger))
	r.Post("/api/simple-chat", handleSimpleChat(svc, logger))
}

type imageJSON struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type chatRequest struct {
	Question    string           `json:"question"`
	SessionID   string           `json:"sessionId"`
	ChatHistory []knowledge.Turn `json:"chatHistory"`
	Images      []imageJSON      `json:"images"`
	ModelType   string           `json:"modelType"`
}

type documentJSON struct {
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

type chatResponse struct {
	Answer            string         `json:"answer"`
	RelevantDocuments []documentJSON `json:"relevantDocuments"`
	SessionID         string         `json:"sessionId"`
}

type simpleChatResponse struct {
	Answer    string `json:"answer"`
	Mode      string `json:"mode"`
	SessionID string `json:"sessionId"`
}

var errInvalidImage = errors.New("invalid image data")

func (c chatRequest) toRequest() (Request, error) {
	req := Request{
		Question:  c.Question,
		SessionID: c.SessionID,
		History:   c.ChatHistory,
		ModelType: c.ModelType,
	}
	for _, img := range c.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil || img.MIMEType == "" {
			return Request{}, errInvalidImage
		}
		req.Images = append(req.Images, knowledge.Image{MIMEType: img.MIMEType, Data: data})
	}
	return req, nil
}

func decodeChat(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Question is required")
		return Request{}, false
	}
	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image data")
		return Request{}, false
	}
	return req, true
}

func handleChat(svc *Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChat(w, r)
		if !ok {
			return
		}

		resp, err := svc.Ask(r.Context(), req)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		docs := make([]documentJSON, 0, len(resp.Documents))
		for _, d := range resp.Documents {
			source := d.Source
			if source == "" {
				source = knowledge.UnknownSource
			}
			docs = append(docs, documentJSON{Title: d.Title, Source: source, Similarity: d.Similarity})
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Answer:            resp.Answer,
			RelevantDocuments: docs,
			SessionID:         resp.SessionID,
		})
	}
}

func handleSimpleChat(svc *Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChat(w, r)
		if !ok {
			return
		}

		resp, err := svc.Direct(r.Context(), req)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, simpleChatResponse{
			Answer:    resp.Answer,
			Mode:      resp.Mode,
			SessionID: resp.SessionID,
		})
	}
}

func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrQuestionRequired):
		writeError(w, http.StatusBadRequest, "Question is required")
	case errors.Is(err, ErrInvalidModelType):
		writeError(w, http.StatusBadRequest, "Invalid modelType")
	default:
		logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
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
