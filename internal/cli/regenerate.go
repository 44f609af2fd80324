package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/projsearch/internal/refresh"
)

var regenerateQuiet bool

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Re-embed every project",
	Long: `Regenerate the embedding of every project. Individual failures are
counted and reported; the command only fails when projects cannot be listed.`,
	Args: cobra.NoArgs,
	RunE: runRegenerate,
}

func init() {
	rootCmd.AddCommand(regenerateCmd)
	regenerateCmd.Flags().BoolVar(&regenerateQuiet, "quiet", false, "suppress the progress bar")
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var opts []refresh.RegenerateOption
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	if !regenerateQuiet {
		opts = append(opts, refresh.WithProgress(func(done, total int) {
			barMu.Lock()
			defer barMu.Unlock()
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("Embedding"),
					progressbar.OptionOnCompletion(func() {
						_, _ = fmt.Fprintln(cmd.ErrOrStderr())
					}),
				)
			}
			_ = bar.Set(done)
		}))
	}

	res, err := a.pipeline.RegenerateAll(cmd.Context(), opts...)
	if err != nil {
		return fmt.Errorf("regeneration failed: %w", err)
	}

	fmt.Printf("Regenerated %d/%d projects in %s", res.Succeeded, res.Total, res.Duration.Round(time.Millisecond))
	if res.Failed > 0 {
		fmt.Printf(" (%d failed, see log)", res.Failed)
	}
	fmt.Println()
	return nil
}
