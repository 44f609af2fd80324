package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show embedding coverage and queued refresh events",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.store.GetEmbeddingStats(cmd.Context())
	if err != nil {
		return err
	}
	pending, err := a.queue.Pending()
	if err != nil {
		return err
	}

	fmt.Printf("Projects:        %d\n", stats.Projects)
	fmt.Printf("With embedding:  %d\n", stats.Embedded)
	fmt.Printf("Missing:         %d\n", stats.Missing)
	fmt.Printf("Queued events:   %d (%s queue)\n", pending, cfg.Refresh.Queue)
	fmt.Printf("Embedder:        %s/%s (dim %d)\n", a.embedder.Provider(), a.embedder.Model(), a.embedder.Dimension())
	return nil
}
