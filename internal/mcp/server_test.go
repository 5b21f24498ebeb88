package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/kbchat/internal/embeddings"
	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/rag"
	"github.com/ziadkadry99/kbchat/internal/retrieval"
)

type mockAsker struct {
	last rag.Request
	err  error
}

func (m *mockAsker) Ask(_ context.Context, req rag.Request) (*rag.Response, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &rag.Response{
		Answer:    "有給休暇は3日前までに申請してください。",
		SessionID: "s1",
		Documents: []knowledge.Match{{Title: "有給休暇の取得方法", Source: "FAQ", Similarity: 0.87}},
	}, nil
}

type mockEmbedder struct{ texts []string }

func (m *mockEmbedder) Embed(_ context.Context, text string) embeddings.Result {
	m.texts = append(m.texts, text)
	return embeddings.Result{Vector: []float32{1, 0, 0}}
}

type mockSearcher struct {
	result *retrieval.Result
	err    error
}

func (m *mockSearcher) Search(context.Context, string, []float32) (*retrieval.Result, error) {
	return m.result, m.err
}

type mockLister struct{ docs []knowledge.Document }

func (m *mockLister) ListDocuments(context.Context) ([]knowledge.Document, error) { return m.docs, nil }

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"ask_knowledge_base", askKnowledgeBaseTool, "ask_knowledge_base"},
		{"search_documents", searchDocumentsTool, "search_documents"},
		{"list_documents", listDocumentsTool, "list_documents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(Deps{})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
}

func TestHandleAskKnowledgeBase(t *testing.T) {
	ctx := context.Background()

	t.Run("answer with sources", func(t *testing.T) {
		asker := &mockAsker{}
		srv := NewServer(Deps{Asker: asker})

		result, err := srv.handleAskKnowledgeBase(ctx, callRequest(map[string]any{
			"question":   "有給休暇は？",
			"model_type": "ollama",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		text := resultText(t, result)
		if !strings.Contains(text, "3日前までに申請") {
			t.Errorf("expected answer text, got %q", text)
		}
		if !strings.Contains(text, "- 有給休暇の取得方法 (FAQ, 87%)") {
			t.Errorf("expected source line, got %q", text)
		}
		if asker.last.ModelType != "ollama" {
			t.Errorf("model_type not forwarded: %+v", asker.last)
		}
	})

	t.Run("missing question", func(t *testing.T) {
		srv := NewServer(Deps{Asker: &mockAsker{}})
		result, _ := srv.handleAskKnowledgeBase(ctx, callRequest(map[string]any{}))
		if !result.IsError {
			t.Error("expected error for missing question")
		}
	})

	t.Run("pipeline error", func(t *testing.T) {
		srv := NewServer(Deps{Asker: &mockAsker{err: rag.ErrInvalidModelType}})
		result, _ := srv.handleAskKnowledgeBase(ctx, callRequest(map[string]any{"question": "q"}))
		if !result.IsError {
			t.Error("expected tool error")
		}
	})

	t.Run("not configured", func(t *testing.T) {
		result, _ := NewServer(Deps{}).handleAskKnowledgeBase(ctx, callRequest(map[string]any{"question": "q"}))
		if !result.IsError {
			t.Error("expected tool error without asker")
		}
	})
}

func TestHandleSearchDocuments(t *testing.T) {
	ctx := context.Background()
	matches := []knowledge.Match{
		{Title: "勤務時間について", Source: "FAQ", Content: "平日9:00-18:00", Similarity: 0.9},
		{Title: "経費精算について", Source: "FAQ", Content: "月末締め", Similarity: 0.4},
	}

	t.Run("limit applied", func(t *testing.T) {
		emb := &mockEmbedder{}
		srv := NewServer(Deps{
			Embedder: emb,
			Searcher: &mockSearcher{result: &retrieval.Result{Matches: matches, Tier: "indexed"}},
		})

		result, err := srv.handleSearchDocuments(ctx, callRequest(map[string]any{"query": "勤務", "limit": 1}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text := resultText(t, result)
		if !strings.Contains(text, "Found 1 document(s) via indexed search") {
			t.Errorf("unexpected header: %q", text)
		}
		if strings.Contains(text, "経費精算") {
			t.Errorf("limit not applied: %q", text)
		}
		if len(emb.texts) != 1 || emb.texts[0] != "勤務" {
			t.Errorf("query not embedded: %v", emb.texts)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		srv := NewServer(Deps{
			Embedder: &mockEmbedder{},
			Searcher: &mockSearcher{result: &retrieval.Result{Tier: "keyword"}},
		})
		result, _ := srv.handleSearchDocuments(ctx, callRequest(map[string]any{"query": "x"}))
		if result.IsError || !strings.Contains(resultText(t, result), "No relevant documents") {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("store unavailable", func(t *testing.T) {
		srv := NewServer(Deps{
			Embedder: &mockEmbedder{},
			Searcher: &mockSearcher{err: knowledge.ErrStoreUnavailable},
		})
		result, _ := srv.handleSearchDocuments(ctx, callRequest(map[string]any{"query": "x"}))
		if !result.IsError || resultText(t, result) != rag.SetupMessage {
			t.Errorf("expected setup message, got %+v", result)
		}
	})

	t.Run("search error", func(t *testing.T) {
		srv := NewServer(Deps{
			Embedder: &mockEmbedder{},
			Searcher: &mockSearcher{err: errors.New("boom")},
		})
		result, _ := srv.handleSearchDocuments(ctx, callRequest(map[string]any{"query": "x"}))
		if !result.IsError {
			t.Error("expected tool error")
		}
	})

	t.Run("missing query", func(t *testing.T) {
		result, _ := NewServer(Deps{}).handleSearchDocuments(ctx, callRequest(map[string]any{}))
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})
}

func TestHandleListDocuments(t *testing.T) {
	ctx := context.Background()

	srv := NewServer(Deps{Lister: &mockLister{docs: []knowledge.Document{{Title: "a", Source: "FAQ"}, {Title: "b", Source: "manual"}}}})
	result, err := srv.handleListDocuments(ctx, callRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "2 document(s)") || !strings.Contains(text, "- b [manual]") {
		t.Errorf("unexpected listing: %q", text)
	}

	empty, _ := NewServer(Deps{Lister: &mockLister{}}).handleListDocuments(ctx, callRequest(nil))
	if !strings.Contains(resultText(t, empty), "empty") {
		t.Errorf("expected empty message, got %q", resultText(t, empty))
	}
}
