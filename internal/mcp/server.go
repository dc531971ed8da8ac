package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tripwell/policy-rag/internal/retriever"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Server exposes the retriever over the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	retriever *retriever.Service
}

// NewServer creates an MCP server whose tools delegate to the given
// retriever service.
func NewServer(config Config, svc *retriever.Service) *Server {
	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		retriever: svc,
	}

	retrieveTool := mcp.NewTool("retrieve_chunks",
		mcp.WithDescription("Retrieve the policy chunks most similar to a query, with their source documents."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language query string"),
		),
		mcp.WithNumber("top_n",
			mcp.Description(fmt.Sprintf("Maximum number of chunks to return (default: %d)", retriever.DefaultTopN)),
		),
	)
	mcpServer.AddTool(retrieveTool, s.retrieveHandler)

	addSourceTool := mcp.NewTool("add_source",
		mcp.WithDescription("Fetch, chunk, and index a new policy document URL."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("HTTP(S) URL of the document to index"),
		),
	)
	mcpServer.AddTool(addSourceTool, s.addSourceHandler)

	listSourcesTool := mcp.NewTool("list_sources",
		mcp.WithDescription("List the source documents currently in the index."),
	)
	mcpServer.AddTool(listSourcesTool, s.listSourcesHandler)

	statusTool := mcp.NewTool("get_status",
		mcp.WithDescription("Report index status: initialization, chunk and vector counts, sources, last update time."),
	)
	mcpServer.AddTool(statusTool, s.statusHandler)

	resetTool := mcp.NewTool("reset_database",
		mcp.WithDescription("Delete the persisted index and metadata and clear the in-memory state."),
	)
	mcpServer.AddTool(resetTool, s.resetHandler)

	return s
}

// retrieveHandler handles the retrieve_chunks tool call.
func (s *Server) retrieveHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	topN := req.GetInt("top_n", retriever.DefaultTopN)

	results, err := s.retriever.RetrieveChunks(ctx, query, topN)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("retrieval failed: %v", err)), nil
	}

	return marshalResult(results)
}

// addSourceHandler handles the add_source tool call.
func (s *Server) addSourceHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	return marshalResult(s.retriever.AddURLSource(ctx, sourceURL))
}

// listSourcesHandler handles the list_sources tool call.
func (s *Server) listSourcesHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sources, err := s.retriever.SourceURLs(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing sources failed: %v", err)), nil
	}

	return marshalResult(sources)
}

// statusHandler handles the get_status tool call.
func (s *Server) statusHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.retriever.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}

	return marshalResult(status)
}

// resetHandler handles the reset_database tool call.
func (s *Server) resetHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.retriever.ResetDatabase())
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
