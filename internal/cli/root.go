package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/projsearch/internal/config"
	"github.com/dshills/projsearch/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
)

// Build information, set by main
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "projsearch",
	Short: "Project search with hybrid lexical and semantic ranking",
	Long: `projsearch indexes mentor projects with text embeddings and serves
hybrid search over the Model Context Protocol.

Example usage:
  projsearch serve                       # MCP server on stdio
  projsearch search -q "graph databases" # One-off search
  projsearch regenerate                  # Re-embed every project`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "~/.projsearch/config.yaml", "config file")
}
