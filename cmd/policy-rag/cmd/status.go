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

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Long: `Show the index state: chunk and vector counts, indexed sources,
and the last update time.

Example:
  policy-rag status --format json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "Output format: text or json")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	svc, err := retriever.New(retrieverConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	status, err := svc.Status(ctx)
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	if statusFormat == "json" {
		output, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Initialized:  %t\n", status.Initialized)
	fmt.Printf("Chunks:       %d\n", status.ChunkCount)
	fmt.Printf("Vectors:      %d\n", status.VectorCount)
	if !status.LastUpdateTime.IsZero() {
		fmt.Printf("Last update:  %s\n", status.LastUpdateTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Sources:      %d\n", len(status.SourceURLs))
	for _, source := range status.SourceURLs {
		fmt.Printf("  - %s (%s)\n", source.Title, source.URL)
	}

	return nil
}
