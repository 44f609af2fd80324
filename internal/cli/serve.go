package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/projsearch/internal/logging"
	"github.com/dshills/projsearch/internal/mcp"
	"github.com/dshills/projsearch/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server on stdio together with the embedding refresh
pipeline and, when metrics.addr is set, a Prometheus /metrics listener.

stdout carries the protocol; logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil && !errors.Is(err, worker.ErrStopTimeout) {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	srv, err := mcp.NewServer(mcp.Deps{
		Store:    a.store,
		Searcher: a.searcher,
		Pipeline: a.pipeline,
		Fetcher:  a.fetcher,
		Cache:    a.cache,
		Pool:     a.pool,
		Logger:   logging.Component(logger, "mcp"),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// stdin closing ends the session and everything else with it
		defer cancel()
		return srv.Serve(gctx, os.Stdin, os.Stdout)
	})
	g.Go(func() error {
		return a.pipeline.Run(gctx)
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return a.metrics.Serve(gctx, cfg.Metrics.Addr, logging.Component(logger, "metrics"))
		})
	}

	err = g.Wait()
	logger.Info().Msg("server stopped")
	return err
}
