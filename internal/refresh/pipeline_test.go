package refresh

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projsearch/internal/embedder"
	"github.com/dshills/projsearch/internal/events"
	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/internal/worker"
	"github.com/dshills/projsearch/pkg/types"
)

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	embedFunc  func(ctx context.Context, text string) ([]float32, error)
	batchFunc  func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}
	return []float32{float32(len(text)), 1}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.batchFunc != nil {
		return m.batchFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 2}
	}
	return out, nil
}

func (m *mockEmbedder) Dimension() int   { return 2 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

var errProviderDown = &embedder.ProviderError{Kind: embedder.KindUnavailable, Provider: "mock", Err: errors.New("down")}

func setupStore(t *testing.T) (*storage.SQLiteStorage, *storage.User) {
	t.Helper()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mentor := &storage.User{Email: "mentor@example.com", Name: "Mentor", Role: types.RoleMentor}
	require.NoError(t, s.CreateUser(context.Background(), mentor))
	return s, mentor
}

func addProject(t *testing.T, s storage.Storage, mentor *storage.User, title string) *storage.Project {
	t.Helper()
	p := &storage.Project{MentorID: mentor.ID, Title: title, Goal: "goal of " + title, Status: types.StatusPublished}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func TestRefresh_WritesEmbedding(t *testing.T) {
	s, mentor := setupStore(t)
	p := addProject(t, s, mentor, "Graph Search")
	emb := &mockEmbedder{}
	pl := New(s, emb, Config{})

	require.NoError(t, pl.Refresh(context.Background(), p.ID))

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	want := float32(len(embedder.BuildSearchableText(p.Title, p.Goal, "", "")))
	assert.Equal(t, []float32{want, 1}, got.Embedding)

	state, ok := pl.Tracker().Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, StateEmbedded, state)
}

func TestRefresh_FailureLeavesEmbeddingUntouched(t *testing.T) {
	s, mentor := setupStore(t)
	p := addProject(t, s, mentor, "Kept")
	require.NoError(t, s.UpdateEmbedding(context.Background(), p.ID, []float32{9, 9}, p.Revision))

	emb := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, errProviderDown
	}}
	pl := New(s, emb, Config{})

	err := pl.Refresh(context.Background(), p.ID)
	assert.ErrorIs(t, err, embedder.ErrUnavailable)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9}, got.Embedding)
	assert.Equal(t, StateFailed, pl.Tracker().Resolve(p.ID, true))
}

func TestRefresh_MissingProject(t *testing.T) {
	s, _ := setupStore(t)
	pl := New(s, &mockEmbedder{}, Config{})

	err := pl.Refresh(context.Background(), 404)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, StateFailed, pl.Tracker().Resolve(404, false))
}

func TestRefresh_ReloadsWhenProjectChangesMidway(t *testing.T) {
	s, mentor := setupStore(t)
	p := addProject(t, s, mentor, "Before")

	var edited atomic.Bool
	emb := &mockEmbedder{}
	emb.embedFunc = func(ctx context.Context, text string) ([]float32, error) {
		if edited.CompareAndSwap(false, true) {
			// Simulate a concurrent edit committed while the provider is busy
			current, err := s.GetProject(ctx, p.ID)
			require.NoError(t, err)
			current.Title = "After"
			require.NoError(t, s.UpdateProject(ctx, current))
			return []float32{0, 0}, nil
		}
		if strings.HasPrefix(text, "After") {
			return []float32{1, 1}, nil
		}
		return []float32{0, 0}, nil
	}
	pl := New(s, emb, Config{})

	require.NoError(t, pl.Refresh(context.Background(), p.ID))
	assert.Equal(t, int64(2), emb.embedCalls.Load())

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, got.Embedding)
}

func TestRegenerateAll_FallsBackPerItem(t *testing.T) {
	s, mentor := setupStore(t)
	for _, title := range []string{"one", "two", "bad", "four", "five"} {
		addProject(t, s, mentor, title)
	}

	emb := &mockEmbedder{
		batchFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			for _, text := range texts {
				if strings.HasPrefix(text, "bad") {
					return nil, errProviderDown
				}
			}
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1, 2}
			}
			return out, nil
		},
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			if strings.HasPrefix(text, "bad") {
				return nil, errProviderDown
			}
			return []float32{3, 4}, nil
		},
	}
	pl := New(s, emb, Config{BatchSize: 2})

	var calls []int
	res, err := pl.RegenerateAll(context.Background(), WithProgress(func(done, total int) {
		assert.Equal(t, 5, total)
		calls = append(calls, done)
	}))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, calls)
	assert.Equal(t, int64(3), emb.batchCalls.Load())
	// Only the failing batch falls back to single calls
	assert.Equal(t, int64(2), emb.embedCalls.Load())

	stats, err := s.GetEmbeddingStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Embedded)
	assert.Equal(t, int64(1), stats.Missing)

	counts := pl.Tracker().Counts()
	assert.Equal(t, 4, counts[StateEmbedded])
	assert.Equal(t, 1, counts[StateFailed])
}

func TestRegenerateAll_ReloadsWhenProjectChangesMidway(t *testing.T) {
	s, mentor := setupStore(t)
	p := addProject(t, s, mentor, "Before")
	addProject(t, s, mentor, "Steady")

	var edited atomic.Bool
	emb := &mockEmbedder{
		batchFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			if edited.CompareAndSwap(false, true) {
				// An edit lands after the batch read its revisions
				current, err := s.GetProject(ctx, p.ID)
				require.NoError(t, err)
				current.Title = "After"
				require.NoError(t, s.UpdateProject(ctx, current))
			}
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{0, 0}
			}
			return out, nil
		},
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			if strings.HasPrefix(text, "After") {
				return []float32{1, 1}, nil
			}
			return []float32{0, 0}, nil
		},
	}
	pl := New(s, emb, Config{BatchSize: 10})

	res, err := pl.RegenerateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int64(1), emb.embedCalls.Load())

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, got.Embedding)
	assert.Equal(t, StateEmbedded, pl.Tracker().Resolve(p.ID, true))
}

func TestRegenerateAll_RejectsConcurrentRuns(t *testing.T) {
	s, mentor := setupStore(t)
	addProject(t, s, mentor, "slow")

	started := make(chan struct{})
	release := make(chan struct{})
	emb := &mockEmbedder{batchFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
		close(started)
		<-release
		return [][]float32{{1, 1}}, nil
	}}
	pl := New(s, emb, Config{})

	errCh := make(chan error, 1)
	go func() {
		_, err := pl.RegenerateAll(context.Background())
		errCh <- err
	}()

	<-started
	assert.True(t, pl.Regenerating())
	_, err := pl.RegenerateAll(context.Background())
	assert.ErrorIs(t, err, ErrRegenerationInProgress)

	close(release)
	require.NoError(t, <-errCh)
	assert.False(t, pl.Regenerating())
}

func TestRegenerateAll_StopsOnCancel(t *testing.T) {
	s, mentor := setupStore(t)
	addProject(t, s, mentor, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pl := New(s, &mockEmbedder{}, Config{})

	res, err := pl.RegenerateAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 0, res.Succeeded)
}

func TestRun_ProcessesNotifiedEvents(t *testing.T) {
	s, mentor := setupStore(t)
	p := addProject(t, s, mentor, "Evented")

	pool := worker.NewPool(worker.Config{Capacity: 4})
	queue := events.NewMemoryQueue(8)
	pl := New(s, &mockEmbedder{}, Config{Queue: queue, Pool: pool})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- pl.Run(ctx) }()

	require.NoError(t, pl.Notify(ctx, p.ID, events.KindCreated))

	require.Eventually(t, func() bool {
		got, err := s.GetProject(context.Background(), p.ID)
		return err == nil && got.Embedding != nil
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		n, _ := queue.Pending()
		return n == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-runDone)
	require.NoError(t, pool.Shutdown(time.Second))
}

func TestRun_RequiresPool(t *testing.T) {
	s, _ := setupStore(t)
	pl := New(s, &mockEmbedder{}, Config{})
	assert.ErrorIs(t, pl.Run(context.Background()), ErrNoPool)
}

func TestNotify_RejectsUnknownKind(t *testing.T) {
	s, _ := setupStore(t)
	pl := New(s, &mockEmbedder{}, Config{})
	err := pl.Notify(context.Background(), 1, events.Kind("DELETED"))
	assert.ErrorIs(t, err, events.ErrUnknownKind)
}

func TestTracker_Resolve(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StateNoEmbedding, tr.Resolve(1, false))
	assert.Equal(t, StateEmbedded, tr.Resolve(1, true))

	tr.Set(1, StateGenerating)
	assert.Equal(t, StateGenerating, tr.Resolve(1, true))
	assert.Equal(t, map[State]int{StateGenerating: 1}, tr.Counts())
}
