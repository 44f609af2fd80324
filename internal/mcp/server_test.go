package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projsearch/internal/detail"
	"github.com/dshills/projsearch/internal/embedder"
	"github.com/dshills/projsearch/internal/querycache"
	"github.com/dshills/projsearch/internal/refresh"
	"github.com/dshills/projsearch/internal/searcher"
	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/pkg/types"
)

type testEnv struct {
	server    *Server
	store     *storage.SQLiteStorage
	mentor    *storage.User
	published *storage.Project
	draft     *storage.Project
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	mentor := &storage.User{Email: "mentor@example.com", Name: "Mentor", Role: types.RoleMentor}
	require.NoError(t, store.CreateUser(ctx, mentor))

	published := &storage.Project{
		MentorID: mentor.ID, Title: "Graph Engine", Goal: "Build a graph query engine",
		Tags: "graphs,databases", Difficulty: types.DifficultyMedium, ThesisOK: true,
		Status: types.StatusPublished,
	}
	draft := &storage.Project{
		MentorID: mentor.ID, Title: "Graph Draft", Goal: "Unpublished idea",
		Status: types.StatusDraft,
	}
	require.NoError(t, store.CreateProject(ctx, published))
	require.NoError(t, store.CreateProject(ctx, draft))

	emb := embedder.NewLocalProvider(32)
	log := zerolog.Nop()
	cache := querycache.New(emb, querycache.Config{Logger: log})

	srv, err := NewServer(Deps{
		Store:    store,
		Searcher: searcher.NewSearcher(store, cache, searcher.Config{Logger: log}),
		Pipeline: refresh.New(store, emb, refresh.Config{Logger: log}),
		Fetcher:  detail.NewFetcher(store, 0, log),
		Cache:    cache,
		Logger:   log,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, store: store, mentor: mentor, published: published, draft: draft}
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer_MissingDependency(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestSearchProjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("student sees published only", func(t *testing.T) {
		res, err := env.server.handleSearchProjects(ctx, call("search_projects", map[string]interface{}{
			"query":       "graph",
			"viewer_role": "STUDENT",
		}))
		require.NoError(t, err)
		out := decode(t, res)
		assert.Equal(t, float64(1), out["total"])
		items := out["items"].([]interface{})
		require.Len(t, items, 1)
		assert.Equal(t, "Graph Engine", items[0].(map[string]interface{})["title"])
	})

	t.Run("mentor sees own draft", func(t *testing.T) {
		res, err := env.server.handleSearchProjects(ctx, call("search_projects", map[string]interface{}{
			"query":       "graph",
			"search_mode": "lexical",
			"viewer_id":   float64(env.mentor.ID),
			"viewer_role": "MENTOR",
		}))
		require.NoError(t, err)
		assert.Equal(t, float64(2), decode(t, res)["total"])
	})

	t.Run("filters applied", func(t *testing.T) {
		res, err := env.server.handleSearchProjects(ctx, call("search_projects", map[string]interface{}{
			"viewer_role": "ADMIN",
			"filters": map[string]interface{}{
				"difficulty": "medium",
				"thesis_ok":  true,
			},
		}))
		require.NoError(t, err)
		out := decode(t, res)
		assert.Equal(t, float64(1), out["total"])
	})

	t.Run("invalid mode", func(t *testing.T) {
		_, err := env.server.handleSearchProjects(ctx, call("search_projects", map[string]interface{}{
			"query":       "graph",
			"search_mode": "fuzzy",
		}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := env.server.handleSearchProjects(ctx, call("search_projects", map[string]interface{}{
			"viewer_role": "GUEST",
		}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})

	t.Run("oversized page clamped", func(t *testing.T) {
		res, err := env.server.handleSearchProjects(ctx, call("search_projects", map[string]interface{}{
			"page_size": float64(1000),
		}))
		require.NoError(t, err)
		assert.Equal(t, float64(searcher.DefaultMaxPageSize), decode(t, res)["page_size"])
	})

	t.Run("negative page", func(t *testing.T) {
		_, err := env.server.handleSearchProjects(ctx, call("search_projects", map[string]interface{}{
			"page": float64(-1),
		}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})

	t.Run("non-integral paging", func(t *testing.T) {
		for _, args := range []map[string]interface{}{
			{"page": 1.5},
			{"page_size": 2.25},
			{"page_size": 1e300},
			{"page": -1e19},
			{"page": "2"},
		} {
			_, err := env.server.handleSearchProjects(ctx, call("search_projects", args))
			requireCode(t, err, ErrorCodeInvalidParams)
		}
	})

	t.Run("integral float paging accepted", func(t *testing.T) {
		res, err := env.server.handleSearchProjects(ctx, call("search_projects", map[string]interface{}{
			"page":      float64(0),
			"page_size": float64(5),
		}))
		require.NoError(t, err)
		assert.Equal(t, float64(5), decode(t, res)["page_size"])
	})

	t.Run("non-object arguments", func(t *testing.T) {
		_, err := env.server.handleSearchProjects(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: "search_projects", Arguments: "oops"},
		})
		requireCode(t, err, ErrorCodeInvalidParams)
	})
}

func TestNotifyAndRegenerate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.server.handleNotifyProjectMutation(ctx, call("notify_project_mutation", map[string]interface{}{
		"project_id": float64(env.published.ID),
		"kind":       "CREATED",
	}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, res)["queued"])

	pending, err := env.server.pipeline.Queue().Pending()
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	_, err = env.server.handleNotifyProjectMutation(ctx, call("notify_project_mutation", map[string]interface{}{
		"project_id": float64(env.published.ID),
		"kind":       "DELETED",
	}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = env.server.handleNotifyProjectMutation(ctx, call("notify_project_mutation", map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)

	res, err = env.server.handleRegenerateEmbeddings(ctx, call("regenerate_embeddings", map[string]interface{}{}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, float64(2), out["total"])
	assert.Equal(t, float64(2), out["succeeded"])
	assert.Equal(t, float64(0), out["failed"])

	stats, err := env.store.GetEmbeddingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Embedded)
}

func TestGetProjectFull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := &storage.User{Email: "s@example.com", Name: "Student", Role: types.RoleStudent}
	require.NoError(t, env.store.CreateUser(ctx, student))
	require.NoError(t, env.store.CreateApplication(ctx, &storage.Application{
		ProjectID: env.published.ID, StudentID: student.ID, Message: "I am interested",
		Status: storage.ApplicationPending,
	}))

	res, err := env.server.handleGetProjectFull(ctx, call("get_project_full", map[string]interface{}{
		"project_id":  float64(env.published.ID),
		"viewer_id":   float64(env.mentor.ID),
		"viewer_role": "MENTOR",
	}))
	require.NoError(t, err)
	out := decode(t, res)
	project := out["project"].(map[string]interface{})
	assert.Equal(t, "Graph Engine", project["title"])
	assert.Len(t, out["applications"], 1)
	assert.Empty(t, out["questions"])

	_, err = env.server.handleGetProjectFull(ctx, call("get_project_full", map[string]interface{}{
		"project_id": float64(env.draft.ID),
	}))
	requireCode(t, err, ErrorCodeProjectNotFound)

	// published projects still hide applications from anyone but the owner
	_, err = env.server.handleGetProjectFull(ctx, call("get_project_full", map[string]interface{}{
		"project_id": float64(env.published.ID),
		"viewer_id":  float64(student.ID),
	}))
	requireCode(t, err, ErrorCodeProjectNotFound)

	_, err = env.server.handleGetProjectFull(ctx, call("get_project_full", map[string]interface{}{
		"project_id":  float64(env.published.ID),
		"viewer_id":   float64(4242),
		"viewer_role": "MENTOR",
	}))
	requireCode(t, err, ErrorCodeProjectNotFound)

	_, err = env.server.handleGetProjectFull(ctx, call("get_project_full", map[string]interface{}{
		"project_id":  float64(env.draft.ID),
		"viewer_role": "ADMIN",
	}))
	require.NoError(t, err)

	_, err = env.server.handleGetProjectFull(ctx, call("get_project_full", map[string]interface{}{
		"project_id":  float64(99999),
		"viewer_role": "ADMIN",
	}))
	requireCode(t, err, ErrorCodeProjectNotFound)
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.server.pipeline.Refresh(ctx, env.published.ID))

	res, err := env.server.handleGetStatus(ctx, call("get_status", map[string]interface{}{
		"project_id": float64(env.published.ID),
	}))
	require.NoError(t, err)
	out := decode(t, res)

	assert.Equal(t, float64(2), out["projects"])
	assert.Equal(t, float64(1), out["embedded"])
	assert.Equal(t, float64(1), out["missing"])
	assert.Equal(t, false, out["regenerating"])
	assert.Contains(t, out, "query_cache")
	assert.NotContains(t, out, "workers")

	project := out["project"].(map[string]interface{})
	assert.Equal(t, string(refresh.StateEmbedded), project["state"])

	build := out["build"].(map[string]interface{})
	assert.Equal(t, storage.DriverName, build["driver"])
}

func TestToolError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", storage.ErrNotFound, ErrorCodeProjectNotFound},
		{"busy", refresh.ErrRegenerationInProgress, ErrorCodeRegenerationInProgress},
		{"search timeout", searcher.ErrSearchTimeout, ErrorCodeTimeout},
		{"detail timeout", detail.ErrTimeout, ErrorCodeTimeout},
		{"bad request", searcher.ErrInvalidRequest, ErrorCodeInvalidParams},
		{"other", errors.New("boom"), ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, toolError("failed", tt.err), tt.code)
		})
	}
}
