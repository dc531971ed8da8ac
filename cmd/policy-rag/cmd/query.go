package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tripwell/policy-rag/internal/retriever"
)

var (
	queryTopN   int
	queryFormat string
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Retrieve the chunks most similar to a query",
	Long: `Embed the query and retrieve the nearest chunks from the index.

Examples:
  # Basic retrieval
  policy-rag query "what is the daily meal allowance"

  # More results
  policy-rag query "booking rules" --top-n 10

  # JSON output for scripting
  policy-rag query "reimbursement" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().IntVar(&queryTopN, "top-n", retriever.DefaultTopN, "Maximum number of chunks")
	queryCmd.Flags().StringVar(&queryFormat, "format", "text", "Output format: text or json")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := args[0]
	cfg := GetConfig()

	svc, err := retriever.New(retrieverConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	results, err := svc.RetrieveChunks(ctx, query, queryTopN)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if len(results.Chunks) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if queryFormat == "json" {
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d chunks:\n\n", len(results.Chunks))
	for i, chunk := range results.Chunks {
		fmt.Printf("─── Chunk %d ───\n", i+1)
		fmt.Printf("Score:   %.4f\n", chunk.Score)
		fmt.Printf("Source:  %s\n", chunk.SourceTitle)
		fmt.Printf("URL:     %s\n", chunk.SourceURL)
		fmt.Printf("ID:      %s\n", chunk.ID)

		text := chunk.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Printf("Text:\n%s\n\n", text)
	}

	fmt.Println("Sources:")
	for _, source := range results.Sources {
		fmt.Printf("  - %s (%s)\n", source.Title, source.URL)
	}

	return nil
}
