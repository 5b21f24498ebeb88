package dashboard

import (
	_ "embed"
	"encoding/json"
	"net/http"
)

//go:embed index.html
var indexHTML []byte

// ServeIndex serves the embedded HTML dashboard.
func (d *Dashboard) ServeIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

type statsResponse struct {
	Documents      int      `json:"documents"`
	WithEmbeddings int      `json:"with_embeddings"`
	RecentHistory  int      `json:"recent_history"`
	RecentTitles   []string `json:"recent_titles"`
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	if d.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "document store not configured"})
		return
	}
	st, err := d.stats.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	titles := make([]string, 0, len(st.Sample))
	for _, doc := range st.Sample {
		titles = append(titles, doc.Title)
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Documents:      st.Documents,
		WithEmbeddings: st.WithEmbeddings,
		RecentHistory:  st.RecentHistory,
		RecentTitles:   titles,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
