package searcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/projsearch/internal/metrics"
	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid   SearchMode = "hybrid"   // Lexical + semantic with RRF
	SearchModeSemantic SearchMode = "semantic" // Embedding distance only
	SearchModeLexical  SearchMode = "lexical"  // SQL substring match only
)

const (
	DefaultRRFConstant = 60
	DefaultPageSize    = 20
	DefaultMaxPageSize = 100
	DefaultTimeout     = 10 * time.Second
)

var (
	// ErrSearchTimeout is returned when the search does not finish within
	// its timeout. Callers may retry.
	ErrSearchTimeout = errors.New("search timed out")

	// ErrInvalidRequest is returned for malformed paging or mode values
	ErrInvalidRequest = errors.New("invalid search request")
)

// QueryEmbedder returns the embedding of a query string. *querycache.Cache
// implements it.
type QueryEmbedder interface {
	Get(ctx context.Context, query string) ([]float32, error)
}

// Config configures a Searcher
type Config struct {
	RRFConstant     int
	Timeout         time.Duration
	DefaultPageSize int
	MaxPageSize     int
	Logger          zerolog.Logger
	Registerer      prometheus.Registerer
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	Filters  types.Filters
	Viewer   types.Viewer
	Page     int // 0-indexed
	PageSize int // 0 selects the default
	Mode     SearchMode
}

// Searcher runs project searches against the entity store
type Searcher struct {
	storage storage.Storage
	queries QueryEmbedder
	cfg     Config
	log     zerolog.Logger

	searches *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, queries QueryEmbedder, cfg Config) *Searcher {
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = min(DefaultPageSize, cfg.MaxPageSize)
	}

	return &Searcher{
		storage: store,
		queries: queries,
		cfg:     cfg,
		log:     cfg.Logger,
		searches: metrics.Register(cfg.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Searches by mode and outcome",
		}, []string{"mode", "outcome"})),
		duration: metrics.Register(cfg.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search latency by mode",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"})),
	}
}

// Search returns one page of projects matching req.
//
// A blank query lists projects newest first with paging and counting done
// in SQL. Otherwise the lexical and semantic rankings are computed
// concurrently, fused with RRF, narrowed by the structured filters and
// sliced to the requested page. If the semantic side fails the search
// continues on the lexical ranking alone and the page is marked Degraded.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*types.ProjectPage, error) {
	start := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	mode := string(req.Mode)
	if strings.TrimSpace(req.Query) == "" {
		mode = "list"
	}

	var (
		page *types.ProjectPage
		err  error
	)
	if mode == "list" {
		page, err = s.listSearch(ctx, req)
	} else {
		page, err = s.rankedSearch(ctx, req)
	}
	s.duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	if err != nil {
		err = timeoutErr(ctx, err)
		outcome := "error"
		if errors.Is(err, ErrSearchTimeout) {
			outcome = "timeout"
		}
		s.searches.WithLabelValues(mode, outcome).Inc()
		return nil, err
	}

	outcome := "ok"
	if page.Degraded {
		outcome = "degraded"
	}
	s.searches.WithLabelValues(mode, outcome).Inc()
	return page, nil
}

// listSearch handles blank queries entirely in SQL
func (s *Searcher) listSearch(ctx context.Context, req SearchRequest) (*types.ProjectPage, error) {
	lq := storage.LexicalQuery{Viewer: req.Viewer, Filters: req.Filters}
	items, total, err := s.storage.ListProjects(ctx, lq, req.Page*req.PageSize, req.PageSize)
	if err != nil {
		return nil, err
	}
	return &types.ProjectPage{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

// rankedSearch fuses the lexical and semantic rankings
func (s *Searcher) rankedSearch(ctx context.Context, req SearchRequest) (*types.ProjectPage, error) {
	lq := storage.LexicalQuery{Viewer: req.Viewer, Text: req.Query, Filters: req.Filters}

	var (
		lexical, semantic []int64
		semErr            error
	)

	g, gctx := errgroup.WithContext(ctx)
	if req.Mode != SearchModeSemantic {
		g.Go(func() error {
			ids, err := s.storage.SearchLexical(gctx, lq)
			if err != nil {
				return fmt.Errorf("lexical search failed: %w", err)
			}
			lexical = ids
			return nil
		})
	}
	if req.Mode != SearchModeLexical {
		g.Go(func() error {
			// Semantic failures degrade instead of failing the search
			semantic, semErr = s.semanticRanking(gctx, req.Query, req.Viewer)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	degraded := false
	if semErr != nil {
		if ctx.Err() != nil {
			return nil, semErr
		}
		degraded = true
		semantic = nil
		s.log.Warn().Err(semErr).Str("query", req.Query).Msg("semantic ranking failed, using lexical results only")

		if req.Mode == SearchModeSemantic {
			ids, err := s.storage.SearchLexical(ctx, lq)
			if err != nil {
				return nil, fmt.Errorf("lexical search failed: %w", err)
			}
			lexical = ids
		}
	}

	fused := FuseRRF(s.cfg.RRFConstant, Ranked(lexical), Ranked(semantic))
	ids := make([]int64, len(fused))
	for i, f := range fused {
		ids[i] = f.ProjectID
	}

	summaries, err := s.storage.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	filtered := summaries[:0]
	for _, sum := range summaries {
		if req.Filters.Matches(sum) {
			filtered = append(filtered, sum)
		}
	}

	return &types.ProjectPage{
		Items:    paginate(filtered, req.Page, req.PageSize),
		Total:    int64(len(filtered)),
		Page:     req.Page,
		PageSize: req.PageSize,
		Degraded: degraded,
	}, nil
}

// paginate returns items[page*size : page*size+size], or an empty slice
// when the offset is past the end
func paginate(items []types.ProjectSummary, page, size int) []types.ProjectSummary {
	offset := page * size
	if offset >= len(items) {
		return []types.ProjectSummary{}
	}
	end := min(offset+size, len(items))
	return items[offset:end]
}

// validateRequest ensures search request is valid and fills defaults
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if req.Page < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, types.ErrInvalidPage)
	}
	if req.PageSize < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, types.ErrInvalidPageSize)
	}
	if req.PageSize == 0 {
		req.PageSize = s.cfg.DefaultPageSize
	}
	if req.PageSize > s.cfg.MaxPageSize {
		req.PageSize = s.cfg.MaxPageSize
	}
	if req.Page > math.MaxInt/req.PageSize-1 {
		return fmt.Errorf("%w: page %d out of range", ErrInvalidRequest, req.Page)
	}

	switch req.Mode {
	case "":
		req.Mode = SearchModeHybrid
	case SearchModeHybrid, SearchModeSemantic, SearchModeLexical:
	default:
		return fmt.Errorf("%w: unsupported search mode %q", ErrInvalidRequest, req.Mode)
	}
	return nil
}

// timeoutErr maps an expired search deadline to ErrSearchTimeout
func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrSearchTimeout, err)
	}
	return err
}
