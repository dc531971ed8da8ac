package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripwell/policy-rag/internal/mcp"
	"github.com/tripwell/policy-rag/internal/retriever"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for policy retrieval.

The server communicates via stdio and provides these tools:
  - retrieve_chunks: Retrieve chunks similar to a query
  - add_source:      Index a new document URL
  - list_sources:    List indexed sources
  - get_status:      Report index status
  - reset_database:  Delete the index and metadata

Example:
  policy-rag serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	svc, err := retriever.New(retrieverConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	server := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, svc)

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
