package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/docsift/docsift/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Answerer Answerer
}

// NewMCPServer creates an MCP server exposing the question-answering
// surface to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docsift",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docsift — document search: ask questions against ingested document collections."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question against a document collection. Returns a verbatim answer with file/page citations."),
			mcp.WithString("collection", mcp.Description("Collection name to search"), mcp.Required()),
			mcp.WithString("question", mcp.Description("Question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_collections",
			mcp.WithDescription("List available document collections."),
		),
		mcpListCollections(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("collection")
		if err != nil {
			return mcpError("collection is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		collection, err := deps.Store.GetCollectionByName(name)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("collection %q not found", name)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get collection: %v", err)), nil
		}

		ans, err := deps.Answerer.Ask(ctx, collection, question)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to answer: %v", err)), nil
		}

		b, err := json.Marshal(ans)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListCollections(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		collections, err := deps.Store.ListCollections()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list collections: %v", err)), nil
		}

		type collectionResult struct {
			Name           string `json:"name"`
			EmbeddingModel string `json:"embedding_model"`
			VectorSize     int    `json:"vector_size"`
			CreatedAt      string `json:"created_at"`
		}

		results := make([]collectionResult, len(collections))
		for i, c := range collections {
			results[i] = collectionResult{
				Name:           c.Name,
				EmbeddingModel: c.EmbeddingModel,
				VectorSize:     c.VectorSize,
				CreatedAt:      c.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal collections: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
