package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/internal/vectormath"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	// Runs without a config file
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("projsearch %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Strategy: %s\n", vectormath.Default().Name())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
