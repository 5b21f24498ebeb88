package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/rag"
)

const defaultSearchLimit = 5

// handleAskKnowledgeBase runs the full question answering pipeline.
func (s *Server) handleAskKnowledgeBase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}
	if s.deps.Asker == nil {
		return mcp.NewToolResultError("question answering is not configured"), nil
	}

	resp, err := s.deps.Asker.Ask(ctx, rag.Request{
		Question:  question,
		SessionID: request.GetString("session_id", ""),
		ModelType: request.GetString("model_type", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answering question: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(resp.Answer)
	if len(resp.Documents) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, m := range resp.Documents {
			sb.WriteString(fmt.Sprintf("- %s (%s, %.0f%%)\n", m.Title, m.Source, m.Similarity*100))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleSearchDocuments runs the tiered search without answer generation.
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	if s.deps.Embedder == nil || s.deps.Searcher == nil {
		return mcp.NewToolResultError("document search is not configured"), nil
	}

	limit := request.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	emb := s.deps.Embedder.Embed(ctx, query)
	res, err := s.deps.Searcher.Search(ctx, query, emb.Vector)
	if errors.Is(err, knowledge.ErrStoreUnavailable) {
		return mcp.NewToolResultError(rag.SetupMessage), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	matches := res.Matches
	if len(matches) == 0 {
		return mcp.NewToolResultText("No relevant documents found."), nil
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	return mcp.NewToolResultText(formatMatches(matches, res.Tier)), nil
}

// handleListDocuments lists stored documents.
func (s *Server) handleListDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Lister == nil {
		return mcp.NewToolResultError("document store is not configured"), nil
	}
	docs, err := s.deps.Lister.ListDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing documents: %v", err)), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("The knowledge base is empty. Run `kbchat init` or `kbchat import` to add documents."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d document(s):\n", len(docs)))
	for _, d := range docs {
		sb.WriteString(fmt.Sprintf("- %s [%s]\n", d.Title, d.Source))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// formatMatches converts matches into a text format for agent consumption.
func formatMatches(matches []knowledge.Match, tier string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d document(s) via %s search:\n", len(matches), tier))

	for i, m := range matches {
		sb.WriteString(fmt.Sprintf("\n--- Result %d ---\n", i+1))
		sb.WriteString(fmt.Sprintf("Title: %s\n", m.Title))
		sb.WriteString(fmt.Sprintf("Source: %s\n", m.Source))
		sb.WriteString(fmt.Sprintf("Similarity: %.1f%%\n", m.Similarity*100))
		sb.WriteString("\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	return sb.String()
}
