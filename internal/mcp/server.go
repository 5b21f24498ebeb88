// Package mcp exposes the knowledge base to AI agents as MCP tools over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/rag"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Asker answers questions through the full retrieval pipeline.
type Asker interface {
	Ask(ctx context.Context, req rag.Request) (*rag.Response, error)
}

// DocumentLister lists stored documents.
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]knowledge.Document, error)
}

// Deps are the pipeline pieces the tools call into. Any of them may be nil,
// in which case the tools that need it report an error.
type Deps struct {
	Asker    Asker
	Embedder rag.Embedder
	Searcher rag.Searcher
	Lister   DocumentLister
}

// Server wraps an MCP server that exposes knowledge-base tools.
type Server struct {
	deps Deps
	mcp  *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}

	s.mcp = server.NewMCPServer(
		"kbchat",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(askKnowledgeBaseTool, s.handleAskKnowledgeBase)
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(listDocumentsTool, s.handleListDocuments)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
