package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tripwell/policy-rag/internal/retriever"
)

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Fetch and index a single new source URL",
	Long: `Fetch a document, chunk and embed it, and append it to the index.

Already-indexed URLs are rejected.

Example:
  policy-rag add https://intranet.example.com/travel-policy`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	svc, err := retriever.New(retrieverConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	result := svc.AddURLSource(ctx, args[0])
	if !result.Success {
		return fmt.Errorf("%s", result.Message)
	}

	fmt.Println(result.Message)
	return nil
}
