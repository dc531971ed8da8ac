package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tripwell/policy-rag/internal/retriever"
)

var ingestRefresh bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build or refresh the index from configured sources",
	Long: `Build the vector index from the sources in the config file.

When persisted index artifacts already exist they are reused; pass
--refresh to discard them and rebuild from scratch.

Examples:
  # Build the index (no-op if persisted artifacts exist)
  policy-rag ingest

  # Discard persisted artifacts and rebuild
  policy-rag ingest --refresh`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVar(&ingestRefresh, "refresh", false, "Discard persisted artifacts and rebuild")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	slog.Debug("ingest command starting", "refresh", ingestRefresh, "sources", len(cfg.Sources))

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("no sources configured - check config file")
	}

	svc, err := retriever.New(retrieverConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	if err := svc.Initialize(ctx, ingestRefresh); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	count, err := svc.VectorCount(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Index ready: %d vectors in %s\n", count, cfg.Index.DataDir)
	return nil
}
