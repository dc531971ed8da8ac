package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripwell/policy-rag/internal/retriever"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the persisted index and metadata",
	Long: `Delete the persisted index and metadata files and clear the
in-memory state. The next ingest rebuilds from scratch.

Example:
  policy-rag reset`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	svc, err := retriever.New(retrieverConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	result := svc.ResetDatabase()
	if !result.Success {
		return fmt.Errorf("%s", result.Message)
	}

	fmt.Println(result.Message)
	return nil
}
