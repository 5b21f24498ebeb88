package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// stubEmbedder returns a fixed vector or error.
type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.vec) }
func (s *stubEmbedder) Name() string    { return "stub" }

func TestFallbackPassesThroughSuccess(t *testing.T) {
	stub := &stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	f := NewFallback(stub, 3, nil)

	res := f.Embed(context.Background(), "hello")
	if res.Degraded {
		t.Fatalf("unexpected degraded result: %v", res.Err)
	}
	if len(res.Vector) != 3 || res.Vector[1] != 0.2 {
		t.Errorf("unexpected vector %v", res.Vector)
	}
}

func TestFallbackDegradesOnError(t *testing.T) {
	stub := &stubEmbedder{err: errors.New("quota exceeded")}
	f := NewFallback(stub, 768, nil)

	res := f.Embed(context.Background(), "hello")
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "quota") {
		t.Errorf("expected provider error to be kept, got %v", res.Err)
	}
	if len(res.Vector) != 768 {
		t.Fatalf("expected 768 dimensions, got %d", len(res.Vector))
	}
	for i, v := range res.Vector {
		if v < 0 || v >= 0.01 {
			t.Fatalf("value %d out of placeholder range: %f", i, v)
		}
	}
}

func TestFallbackDegradesOnWrongDimensions(t *testing.T) {
	stub := &stubEmbedder{vec: []float32{1, 2}}
	f := NewFallback(stub, 4, nil)

	res := f.Embed(context.Background(), "hello")
	if !res.Degraded {
		t.Fatal("expected degraded result for wrong dimensionality")
	}
	if len(res.Vector) != 4 {
		t.Errorf("expected 4 dimensions, got %d", len(res.Vector))
	}
}

func TestFallbackUsesEmbedderDimensionsByDefault(t *testing.T) {
	f := NewFallback(&stubEmbedder{vec: make([]float32, 5)}, 0, nil)
	if f.Dimensions() != 5 {
		t.Errorf("expected 5, got %d", f.Dimensions())
	}
}

func TestGoogleEmbedderBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/text-embedding-004:batchEmbedContents") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("api key not sent")
		}
		var req googleBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if len(req.Requests) != 2 {
			t.Errorf("expected 2 requests, got %d", len(req.Requests))
			return
		}
		first := req.Requests[0]
		if first.Model != "models/text-embedding-004" {
			t.Errorf("unexpected model %q", first.Model)
		}
		if first.Content.Parts[0].Text != "勤務時間" {
			t.Errorf("unexpected text %q", first.Content.Parts[0].Text)
		}
		if first.OutputDimensionality != 2 {
			t.Errorf("expected outputDimensionality 2, got %d", first.OutputDimensionality)
		}
		w.Write([]byte(`{"embeddings":[{"values":[0.5,0.25]},{"values":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	e := NewGoogleEmbedder("k", ModelTextEmbedding004).WithBaseURL(srv.URL).WithDimensions(2)
	if e.Dimensions() != 2 {
		t.Errorf("expected 2 dimensions, got %d", e.Dimensions())
	}

	vecs, err := e.Embed(context.Background(), []string{"勤務時間", "休暇"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.5 || vecs[1][1] != 0.2 {
		t.Errorf("unexpected vectors %v", vecs)
	}
}

func TestGoogleEmbedderNativeDimensions(t *testing.T) {
	if d := NewGoogleEmbedder("k", ModelTextEmbedding004).Dimensions(); d != 768 {
		t.Errorf("text-embedding-004: expected 768, got %d", d)
	}
	if d := NewGoogleEmbedder("k", ModelGeminiEmbedding001).Dimensions(); d != 3072 {
		t.Errorf("gemini-embedding-001: expected 3072, got %d", d)
	}
}

func TestGoogleEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[{"values":[1]}]}`))
	}))
	defer srv.Close()

	e := NewGoogleEmbedder("k", ModelTextEmbedding004).WithBaseURL(srv.URL)
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when fewer embeddings are returned")
	}
}

func TestGoogleEmbedderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	e := NewGoogleEmbedder("k", ModelTextEmbedding004).WithBaseURL(srv.URL)
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error for 403")
	}
}

func TestOllamaEmbedderBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 2 {
			t.Errorf("expected 2 inputs, got %d", len(req.Input))
		}
		if !req.Truncate {
			t.Error("expected truncate to be requested")
		}
		w.Write([]byte(`{"embeddings":[[1,0],[0,1]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 2, srv.URL+"/")
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 1 {
		t.Errorf("unexpected vectors %v", vecs)
	}
	if e.Name() != "ollama/nomic-embed-text" {
		t.Errorf("unexpected name %q", e.Name())
	}
}

func TestOllamaEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("m", 2, srv.URL)
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for missing embeddings")
	}
}

func TestOpenAIEmbedderDimensions(t *testing.T) {
	if d := NewOpenAIEmbedder("k", ModelTextEmbedding3Small, 768).Dimensions(); d != 768 {
		t.Errorf("expected requested 768, got %d", d)
	}
	if d := NewOpenAIEmbedder("k", ModelTextEmbedding3Large, 0).Dimensions(); d != 3072 {
		t.Errorf("expected model default 3072, got %d", d)
	}
}
