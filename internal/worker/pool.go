// Package worker provides a bounded pool for background tasks.
//
// The pool runs at most Capacity tasks at once. Submit blocks while the
// pool is saturated, so callers apply backpressure instead of queueing
// without limit. Every task receives the pool's context, which is cancelled
// only when Shutdown's grace period runs out.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/projsearch/internal/metrics"
)

// DefaultCapacity is the number of tasks allowed to run concurrently
const DefaultCapacity = 100

// Task is a unit of background work
type Task func(ctx context.Context) error

// Config configures a Pool
type Config struct {
	Capacity   int
	Name       string // metrics label, defaults to "default"
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
}

// Pool runs tasks with bounded concurrency
type Pool struct {
	name     string
	capacity int64
	sem      *semaphore.Weighted
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifecycleMu sync.Mutex
	stopped     bool

	// Statistics (atomic)
	inFlight  atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	inFlightGauge *prometheus.GaugeVec
	taskCounter   *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
}

// Stats is a snapshot of pool activity
type Stats struct {
	Capacity  int   `json:"capacity"`
	InFlight  int64 `json:"in_flight"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// NewPool creates a pool ready to accept tasks
func NewPool(cfg Config) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:     cfg.Name,
		capacity: int64(cfg.Capacity),
		sem:      semaphore.NewWeighted(int64(cfg.Capacity)),
		log:      cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		inFlightGauge: metrics.Register(cfg.Registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "worker_pool",
			Name:      "in_flight",
			Help:      "Tasks currently running",
		}, []string{"pool"})),
		taskCounter: metrics.Register(cfg.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "worker_pool",
			Name:      "tasks_total",
			Help:      "Finished tasks by status",
		}, []string{"pool", "status"})),
		taskDuration: metrics.Register(cfg.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "worker_pool",
			Name:      "task_duration_seconds",
			Help:      "Time spent running tasks",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"pool"})),
	}
}

// Submit starts task as soon as a slot is free. It blocks while the pool is
// saturated and returns ctx's error if ctx ends first.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return ErrNilTask
	}
	if p.isStopped() {
		return ErrPoolStopped
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	p.lifecycleMu.Lock()
	if p.stopped {
		p.lifecycleMu.Unlock()
		p.sem.Release(1)
		return ErrPoolStopped
	}
	p.wg.Add(1)
	p.lifecycleMu.Unlock()

	p.submitted.Add(1)
	p.inFlight.Add(1)
	p.inFlightGauge.WithLabelValues(p.name).Inc()

	go p.run(task)
	return nil
}

func (p *Pool) run(task Task) {
	start := time.Now()
	defer func() {
		p.inFlight.Add(-1)
		p.inFlightGauge.WithLabelValues(p.name).Dec()
		p.taskDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
		p.sem.Release(1)
		p.wg.Done()
	}()

	err := p.safeRun(task)
	p.completed.Add(1)
	if err != nil {
		p.failed.Add(1)
		p.taskCounter.WithLabelValues(p.name, "error").Inc()
		p.log.Debug().Err(err).Str("pool", p.name).Msg("task failed")
		return
	}
	p.taskCounter.WithLabelValues(p.name, "success").Inc()
}

// safeRun converts a panicking task into an error so one bad task cannot
// take the process down
func (p *Pool) safeRun(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.log.Error().Interface("panic", r).Str("pool", p.name).Msg("task panicked")
		}
	}()
	return task(p.ctx)
}

func (p *Pool) isStopped() bool {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	return p.stopped
}

// Shutdown stops accepting tasks and waits up to grace for in-flight tasks.
// When the grace period expires the task context is cancelled and
// ErrStopTimeout is returned. Calling Shutdown again is a no-op.
func (p *Pool) Shutdown(grace time.Duration) error {
	p.lifecycleMu.Lock()
	if p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-timer.C:
		p.cancel()
		p.log.Warn().
			Str("pool", p.name).
			Int64("in_flight", p.inFlight.Load()).
			Dur("grace", grace).
			Msg("grace period expired, cancelling tasks")
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity:  int(p.capacity),
		InFlight:  p.inFlight.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}
