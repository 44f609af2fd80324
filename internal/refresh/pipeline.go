package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dshills/projsearch/internal/embedder"
	"github.com/dshills/projsearch/internal/events"
	"github.com/dshills/projsearch/internal/metrics"
	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/internal/worker"
)

const (
	// DefaultBatchSize is the number of projects per EmbedBatch call
	DefaultBatchSize = 32

	// maxStaleRetries bounds reloads when the project changes between
	// the read and the embedding write
	maxStaleRetries = 2
)

var (
	// ErrRegenerationInProgress is returned when RegenerateAll is already running
	ErrRegenerationInProgress = errors.New("embedding regeneration already in progress")

	// ErrNoPool is returned by Run when the pipeline has no worker pool
	ErrNoPool = errors.New("refresh pipeline has no worker pool")
)

// Config configures a Pipeline
type Config struct {
	Queue      events.Queue // defaults to a MemoryQueue
	Pool       *worker.Pool // required by Run
	BatchSize  int
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
}

// Pipeline generates and refreshes project embeddings
type Pipeline struct {
	store     storage.Storage
	emb       embedder.Embedder
	queue     events.Queue
	pool      *worker.Pool
	batchSize int
	tracker   *Tracker
	log       zerolog.Logger
	regen     runLock

	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
}

// Result summarises a bulk regeneration
type Result struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// ProgressFunc is called after each project during RegenerateAll
type ProgressFunc func(done, total int)

// RegenerateOption configures a RegenerateAll call
type RegenerateOption func(*regenerateOptions)

type regenerateOptions struct {
	progress ProgressFunc
}

// WithProgress reports progress after every project
func WithProgress(fn ProgressFunc) RegenerateOption {
	return func(o *regenerateOptions) {
		o.progress = fn
	}
}

// New creates a pipeline over the given store and provider
func New(store storage.Storage, emb embedder.Embedder, cfg Config) *Pipeline {
	if cfg.Queue == nil {
		cfg.Queue = events.NewMemoryQueue(events.DefaultBufferSize)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}

	return &Pipeline{
		store:     store,
		emb:       emb,
		queue:     cfg.Queue,
		pool:      cfg.Pool,
		batchSize: cfg.BatchSize,
		tracker:   NewTracker(),
		log:       cfg.Logger,
		outcomes: metrics.Register(cfg.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "refresh",
			Name:      "embeddings_total",
			Help:      "Embedding writes by path and outcome",
		}, []string{"path", "outcome"})),
		duration: metrics.Register(cfg.Registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Time to refresh one project embedding",
			Buckets:   prometheus.DefBuckets,
		})),
	}
}

// Tracker exposes per-project states
func (p *Pipeline) Tracker() *Tracker {
	return p.tracker
}

// Queue returns the event queue the pipeline consumes
func (p *Pipeline) Queue() events.Queue {
	return p.queue
}

// Regenerating reports whether RegenerateAll is running
func (p *Pipeline) Regenerating() bool {
	return p.regen.Held()
}

// Notify publishes a mutation event for projectID. Callers invoke it after
// the mutation has committed.
func (p *Pipeline) Notify(ctx context.Context, projectID int64, kind events.Kind) error {
	if _, err := events.ParseKind(string(kind)); err != nil {
		return err
	}
	if err := p.queue.Publish(ctx, events.New(projectID, kind)); err != nil {
		return fmt.Errorf("failed to publish event for project %d: %w", projectID, err)
	}
	return nil
}

// Run consumes events until ctx is done or the queue is closed. Each event
// becomes one pool task; Submit blocks while the pool is saturated.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.pool == nil {
		return ErrNoPool
	}

	p.log.Info().Msg("refresh pipeline started")
	defer p.log.Info().Msg("refresh pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-p.queue.Events():
			if !ok {
				return nil
			}
			if err := p.pool.Submit(ctx, p.task(ev)); err != nil {
				if errors.Is(err, worker.ErrPoolStopped) || ctx.Err() != nil {
					return nil
				}
				p.log.Error().Err(err).Int64("project_id", ev.ProjectID).Msg("failed to schedule refresh")
			}
		}
	}
}

func (p *Pipeline) task(ev events.Event) worker.Task {
	return func(ctx context.Context) error {
		err := p.Refresh(ctx, ev.ProjectID)

		// A task cut short by shutdown stays in a durable outbox for the
		// next run
		if ctx.Err() != nil {
			return err
		}
		if ackErr := p.queue.Ack(ctx, ev); ackErr != nil {
			p.log.Warn().Err(ackErr).Str("event_id", ev.ID.String()).Msg("failed to ack event")
		}
		return err
	}
}

// Refresh regenerates the embedding of one project. The error is returned
// for accounting only; the caller's mutation has already committed.
func (p *Pipeline) Refresh(ctx context.Context, projectID int64) error {
	start := time.Now()
	defer func() { p.duration.Observe(time.Since(start).Seconds()) }()

	log := p.log.With().Int64("project_id", projectID).Logger()
	p.tracker.Set(projectID, StateGenerating)

	var err error
	for attempt := 0; attempt <= maxStaleRetries; attempt++ {
		err = p.refreshOnce(ctx, projectID)
		if !errors.Is(err, storage.ErrStaleRevision) {
			break
		}
		log.Debug().Int("attempt", attempt+1).Msg("project changed during refresh, reloading")
	}

	switch {
	case err == nil:
		p.tracker.Set(projectID, StateEmbedded)
		p.outcomes.WithLabelValues("event", "success").Inc()
		log.Debug().Dur("took", time.Since(start)).Msg("embedding refreshed")
		return nil
	case errors.Is(err, storage.ErrNotFound):
		p.tracker.Set(projectID, StateFailed)
		p.outcomes.WithLabelValues("event", "not_found").Inc()
		log.Warn().Msg("project vanished before refresh")
	default:
		p.tracker.Set(projectID, StateFailed)
		p.outcomes.WithLabelValues("event", "failed").Inc()
		log.Error().Err(err).Str("kind", embedder.KindOf(err).String()).Msg("embedding refresh failed")
	}
	return err
}

func (p *Pipeline) refreshOnce(ctx context.Context, projectID int64) error {
	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	vec, err := p.emb.Embed(ctx, searchableText(project))
	if err != nil {
		return err
	}
	return p.writeEmbedding(ctx, project, vec)
}

// writeEmbedding stores vec in a transaction scoped to one project
func (p *Pipeline) writeEmbedding(ctx context.Context, project *storage.Project, vec []float32) error {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpdateEmbedding(ctx, project.ID, vec, project.Revision); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RegenerateAll re-embeds every project. Individual failures are counted,
// never fatal; only ctx cancellation or failing to list projects ends the
// run early.
func (p *Pipeline) RegenerateAll(ctx context.Context, opts ...RegenerateOption) (Result, error) {
	var o regenerateOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !p.regen.TryAcquire() {
		return Result{}, ErrRegenerationInProgress
	}
	defer p.regen.Release()

	start := time.Now()
	ids, err := p.store.ListProjectIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list projects: %w", err)
	}

	res := Result{Total: len(ids)}
	p.log.Info().Int("projects", res.Total).Int("batch_size", p.batchSize).Msg("regenerating embeddings")

	for i := 0; i < len(ids); i += p.batchSize {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		end := i + p.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		ok, failed := p.regenerateBatch(ctx, ids[i:end], &o, &res)
		res.Succeeded += ok
		res.Failed += failed
	}

	res.Duration = time.Since(start)
	p.log.Info().
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Dur("took", res.Duration).
		Msg("regeneration finished")
	return res, nil
}

func (p *Pipeline) regenerateBatch(ctx context.Context, ids []int64, o *regenerateOptions, res *Result) (succeeded, failed int) {
	done := func(projectID int64, err error) {
		if err != nil {
			failed++
			p.tracker.Set(projectID, StateFailed)
			p.outcomes.WithLabelValues("bulk", "failed").Inc()
			p.log.Warn().Err(err).Int64("project_id", projectID).Msg("regeneration failed for project")
		} else {
			succeeded++
			p.tracker.Set(projectID, StateEmbedded)
			p.outcomes.WithLabelValues("bulk", "success").Inc()
		}
		if o.progress != nil {
			o.progress(res.Succeeded+res.Failed+succeeded+failed, res.Total)
		}
	}

	projects := make([]*storage.Project, 0, len(ids))
	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		project, err := p.store.GetProject(ctx, id)
		if err != nil {
			done(id, err)
			continue
		}
		p.tracker.Set(id, StateGenerating)
		projects = append(projects, project)
		texts = append(texts, searchableText(project))
	}
	if len(projects) == 0 {
		return succeeded, failed
	}

	vecs, err := p.emb.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(projects) {
		p.log.Debug().Err(err).Int("projects", len(projects)).Msg("batch embedding failed, falling back to single calls")
		vecs = nil
	}

	for i, project := range projects {
		var vec []float32
		if vecs != nil {
			vec = vecs[i]
		} else if vec, err = p.emb.Embed(ctx, texts[i]); err != nil {
			done(project.ID, err)
			continue
		}
		err := p.writeEmbedding(ctx, project, vec)
		for attempt := 0; attempt < maxStaleRetries && errors.Is(err, storage.ErrStaleRevision); attempt++ {
			p.log.Debug().Int64("project_id", project.ID).Int("attempt", attempt+1).Msg("project changed during regeneration, reloading")
			err = p.refreshOnce(ctx, project.ID)
		}
		done(project.ID, err)
	}
	return succeeded, failed
}

func searchableText(p *storage.Project) string {
	return embedder.BuildSearchableText(p.Title, p.Goal, p.KeyTasks, p.Tags)
}
