// Package querycache memoizes query embeddings so repeated searches do not
// call the embedding provider.
//
// Keys are the trimmed, lower-cased query text. Entries expire after a TTL
// (seven days by default) and the least recently used entry is evicted when
// the cache is full. Concurrent misses on the same key share one provider
// call. Failed calls are never cached.
package querycache

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/projsearch/internal/embedder"
	"github.com/dshills/projsearch/internal/metrics"
)

const (
	DefaultSize        = 10000
	DefaultTTL         = 7 * 24 * time.Hour
	DefaultCallTimeout = 30 * time.Second
)

// Config configures a Cache
type Config struct {
	Size int
	TTL  time.Duration

	// CallTimeout bounds a shared provider call. The call is detached from
	// the first caller's context so one cancelled caller cannot fail the
	// others waiting on the same key.
	CallTimeout time.Duration

	Logger     zerolog.Logger
	Registerer prometheus.Registerer
}

// Stats is a point-in-time view of cache activity
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	ProviderCalls int64 `json:"provider_calls"`
	Entries       int   `json:"entries"`
}

// Cache is a cache-aside wrapper around an Embedder
type Cache struct {
	emb         embedder.Embedder
	lru         *expirable.LRU[string, []float32]
	group       singleflight.Group
	callTimeout time.Duration
	log         zerolog.Logger

	hits, misses, calls atomic.Int64

	hitCounter  prometheus.Counter
	missCounter prometheus.Counter
	callCounter *prometheus.CounterVec
}

// New creates a cache in front of emb
func New(emb embedder.Embedder, cfg Config) *Cache {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	return &Cache{
		emb:         emb,
		lru:         expirable.NewLRU[string, []float32](cfg.Size, nil, cfg.TTL),
		callTimeout: cfg.CallTimeout,
		log:         cfg.Logger,
		hitCounter: metrics.Register(cfg.Registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "query_cache",
			Name:      "hits_total",
			Help:      "Query embedding cache hits",
		})),
		missCounter: metrics.Register(cfg.Registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "query_cache",
			Name:      "misses_total",
			Help:      "Query embedding cache misses",
		})),
		callCounter: metrics.Register(cfg.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "query_cache",
			Name:      "provider_calls_total",
			Help:      "Provider calls made on cache misses, by outcome",
		}, []string{"outcome"})),
	}
}

// Normalize returns the cache key for a query
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Get returns the embedding of the normalized query, calling the provider
// only on a miss. The returned slice is a copy the caller may modify.
func (c *Cache) Get(ctx context.Context, query string) ([]float32, error) {
	key := Normalize(query)

	if vec, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		c.hitCounter.Inc()
		return clone(vec), nil
	}
	c.misses.Add(1)
	c.missCounter.Inc()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// Another flight may have filled the key between our miss and now
		if vec, ok := c.lru.Peek(key); ok {
			return vec, nil
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()

		c.calls.Add(1)
		c.log.Debug().Str("query", key).Msg("query embedding cache miss")
		vec, err := c.emb.Embed(callCtx, key)
		if err != nil {
			c.callCounter.WithLabelValues("error").Inc()
			return nil, err
		}
		c.callCounter.WithLabelValues("ok").Inc()
		c.lru.Add(key, vec)
		return vec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.log.Warn().Err(res.Err).Str("query", key).Msg("query embedding failed")
			return nil, res.Err
		}
		return clone(res.Val.([]float32)), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &embedder.ProviderError{Kind: embedder.KindTimeout, Provider: c.emb.Provider(), Err: ctx.Err()}
		}
		return nil, ctx.Err()
	}
}

// Invalidate drops one query from the cache
func (c *Cache) Invalidate(query string) {
	c.lru.Remove(Normalize(query))
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Stats returns current counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		ProviderCalls: c.calls.Load(),
		Entries:       c.lru.Len(),
	}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
