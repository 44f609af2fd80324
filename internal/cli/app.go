package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dshills/projsearch/internal/config"
	"github.com/dshills/projsearch/internal/detail"
	"github.com/dshills/projsearch/internal/embedder"
	"github.com/dshills/projsearch/internal/events"
	"github.com/dshills/projsearch/internal/logging"
	"github.com/dshills/projsearch/internal/metrics"
	"github.com/dshills/projsearch/internal/projects"
	"github.com/dshills/projsearch/internal/querycache"
	"github.com/dshills/projsearch/internal/refresh"
	"github.com/dshills/projsearch/internal/searcher"
	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/internal/vectormath"
	"github.com/dshills/projsearch/internal/worker"
)

// app holds every wired component for one process
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *metrics.Registry
	store    *storage.SQLiteStorage
	embedder embedder.Embedder
	cache    *querycache.Cache
	pool     *worker.Pool
	queue    events.Queue
	pipeline *refresh.Pipeline
	searcher *searcher.Searcher
	fetcher  *detail.Fetcher
	projects *projects.Service
}

// newApp opens storage and the event queue and builds the component graph
func newApp(cfg *config.Config, log zerolog.Logger) (*app, error) {
	strategy, err := vectormath.ByName(cfg.Search.VectorStrategy)
	if err != nil {
		return nil, err
	}
	vectormath.Use(strategy)

	dbPath := config.ExpandPath(cfg.Database.Path)
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.New(embedder.Config{
		Provider:          cfg.Embedding.Provider,
		BaseURL:           cfg.Embedding.BaseURL,
		APIKey:            cfg.Embedding.APIKey,
		Model:             cfg.Embedding.Model,
		Dimension:         cfg.Embedding.Dimension,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		MaxRetries:        cfg.Embedding.MaxRetries,
		Logger:            logging.Component(log, "embedder"),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	queue, err := openQueue(cfg.Refresh)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}

	reg := metrics.NewRegistry()
	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  reg,
		store:    store,
		embedder: emb,
		queue:    queue,
	}

	a.cache = querycache.New(emb, querycache.Config{
		Size:       cfg.QueryCache.Size,
		TTL:        cfg.QueryCache.TTL,
		Logger:     logging.Component(log, "querycache"),
		Registerer: reg.Registerer(),
	})
	a.pool = worker.NewPool(worker.Config{
		Capacity:   cfg.Refresh.Workers,
		Name:       "refresh",
		Logger:     logging.Component(log, "worker"),
		Registerer: reg.Registerer(),
	})
	a.pipeline = refresh.New(store, emb, refresh.Config{
		Queue:      queue,
		Pool:       a.pool,
		BatchSize:  cfg.Embedding.BatchSize,
		Logger:     logging.Component(log, "refresh"),
		Registerer: reg.Registerer(),
	})
	a.searcher = searcher.NewSearcher(store, a.cache, searcher.Config{
		RRFConstant:     cfg.Search.RRFK,
		Timeout:         cfg.Search.Timeout,
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		Logger:          logging.Component(log, "searcher"),
		Registerer:      reg.Registerer(),
	})
	a.fetcher = detail.NewFetcher(store, cfg.Detail.Timeout, logging.Component(log, "detail"))
	a.projects = projects.NewService(store, a.notifier(), logging.Component(log, "projects"))

	log.Debug().
		Str("db", dbPath).
		Str("driver", storage.DriverName).
		Str("embedder", emb.Provider()).
		Str("vector_strategy", strategy.Name()).
		Str("queue", cfg.Refresh.Queue).
		Msg("components wired")

	return a, nil
}

func openQueue(cfg config.RefreshConfig) (events.Queue, error) {
	switch cfg.Queue {
	case "bolt":
		path := config.ExpandPath(cfg.QueuePath)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
		q, err := events.OpenBoltQueue(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event outbox: %w", err)
		}
		return q, nil
	default:
		return events.NewMemoryQueue(cfg.QueueBuffer), nil
	}
}

// notifier picks where mutation events go. A durable outbox is consumed by
// a running server; without one the short-lived CLI refreshes inline.
func (a *app) notifier() projects.Notifier {
	if a.cfg.Refresh.Queue == "bolt" {
		return a.pipeline
	}
	return inlineNotifier{pipeline: a.pipeline}
}

type inlineNotifier struct {
	pipeline *refresh.Pipeline
}

func (n inlineNotifier) Notify(ctx context.Context, projectID int64, kind events.Kind) error {
	return n.pipeline.Refresh(ctx, projectID)
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() error {
	var errs []error
	if err := a.pool.Shutdown(a.cfg.Refresh.ShutdownGrace); err != nil {
		errs = append(errs, err)
	}
	if err := a.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
