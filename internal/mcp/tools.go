package mcp

import "github.com/mark3labs/mcp-go/mcp"

// askKnowledgeBaseTool defines the ask_knowledge_base MCP tool.
var askKnowledgeBaseTool = mcp.NewTool("ask_knowledge_base",
	mcp.WithDescription("Answer a question from the internal knowledge base. The answer is grounded in the matching documents, which are listed as sources."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question to answer, in natural language"),
	),
	mcp.WithString("model_type",
		mcp.Description("Model to answer with (default gemini)"),
		mcp.Enum("gemini", "ollama"),
	),
	mcp.WithString("session_id",
		mcp.Description("Session to record the exchange under"),
	),
)

// searchDocumentsTool defines the search_documents MCP tool.
var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Search the knowledge base for documents relevant to a query without generating an answer."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of documents to return (default 5)"),
	),
)

// listDocumentsTool defines the list_documents MCP tool.
var listDocumentsTool = mcp.NewTool("list_documents",
	mcp.WithDescription("List the titles and sources of all documents in the knowledge base, newest first."),
)
