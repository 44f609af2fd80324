package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/projsearch/internal/detail"
	"github.com/dshills/projsearch/internal/querycache"
	"github.com/dshills/projsearch/internal/refresh"
	"github.com/dshills/projsearch/internal/searcher"
	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/internal/worker"
)

const (
	// ServerName is the MCP server name
	ServerName = "projsearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// ErrMissingDependency is returned by NewServer when a required component is nil
var ErrMissingDependency = errors.New("mcp server dependency missing")

// Deps are the components the tools call into
type Deps struct {
	Store    storage.Storage
	Searcher *searcher.Searcher
	Pipeline *refresh.Pipeline
	Fetcher  *detail.Fetcher

	// Optional, reported by get_status when set
	Cache *querycache.Cache
	Pool  *worker.Pool

	Logger zerolog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	searcher *searcher.Searcher
	pipeline *refresh.Pipeline
	fetcher  *detail.Fetcher
	cache    *querycache.Cache
	pool     *worker.Pool
	log      zerolog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case deps.Searcher == nil:
		return nil, fmt.Errorf("%w: searcher", ErrMissingDependency)
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("%w: pipeline", ErrMissingDependency)
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("%w: fetcher", ErrMissingDependency)
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  deps.Store,
		searcher: deps.Searcher,
		pipeline: deps.Pipeline,
		fetcher:  deps.Fetcher,
		cache:    deps.Cache,
		pool:     deps.Pool,
		log:      deps.Logger,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	s.log.Info().Str("server", ServerName).Str("version", ServerVersion).Msg("MCP server ready on stdio")
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(searchProjectsTool(), s.handleSearchProjects)
	s.mcp.AddTool(notifyProjectMutationTool(), s.handleNotifyProjectMutation)
	s.mcp.AddTool(regenerateEmbeddingsTool(), s.handleRegenerateEmbeddings)
	s.mcp.AddTool(getProjectFullTool(), s.handleGetProjectFull)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}
