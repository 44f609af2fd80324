package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projsearch/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func createUser(t *testing.T, s Storage, email string, role types.Role) *User {
	t.Helper()
	u := &User{Email: email, Name: email, Role: role}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func createProject(t *testing.T, s Storage, p *Project, age int) *Project {
	t.Helper()
	// larger age means older
	p.CreatedAt = baseTime.Add(-time.Duration(age) * time.Hour)
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
}

func TestCreateAndGetProject(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	mentor := createUser(t, s, "m@example.com", types.RoleMentor)

	p := &Project{
		MentorID:       mentor.ID,
		Title:          "Graph Search",
		Goal:           "Build a graph engine",
		Tags:           "graphs",
		Difficulty:     types.DifficultyHard,
		ThesisOK:       true,
		RequiredSkills: "Go",
	}
	require.NoError(t, s.CreateProject(ctx, p))
	assert.Greater(t, p.ID, int64(0))
	assert.Equal(t, int64(1), p.Revision)
	assert.Equal(t, types.StatusDraft, p.Status)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Graph Search", got.Title)
	assert.Equal(t, mentor.Name, got.MentorName)
	assert.Equal(t, types.DifficultyHard, got.Difficulty)
	assert.True(t, got.ThesisOK)
	assert.False(t, got.PracticeOK)
	assert.Nil(t, got.Embedding)
}

func TestGetProject_NotFound(t *testing.T) {
	s := setupTestDB(t)
	_, err := s.GetProject(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUser_Duplicate(t *testing.T) {
	s := setupTestDB(t)
	createUser(t, s, "dup@example.com", types.RoleStudent)

	err := s.CreateUser(context.Background(), &User{Email: "dup@example.com", Name: "x", Role: types.RoleStudent})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestUpdateProject_BumpsRevisionAndKeepsEmbedding(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	mentor := createUser(t, s, "m@example.com", types.RoleMentor)
	p := createProject(t, s, &Project{MentorID: mentor.ID, Title: "A"}, 0)

	require.NoError(t, s.UpdateEmbedding(ctx, p.ID, []float32{0.5, 0.25}, p.Revision))

	p.Title = "B"
	require.NoError(t, s.UpdateProject(ctx, p))
	assert.Equal(t, int64(2), p.Revision)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Title)
	assert.Equal(t, []float32{0.5, 0.25}, got.Embedding)
}

func TestUpdateProject_NotFound(t *testing.T) {
	s := setupTestDB(t)
	err := s.UpdateProject(context.Background(), &Project{ID: 42, Title: "x", Status: types.StatusDraft})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEmbedding(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	mentor := createUser(t, s, "m@example.com", types.RoleMentor)
	p := createProject(t, s, &Project{MentorID: mentor.ID, Title: "A"}, 0)

	t.Run("writes at current revision", func(t *testing.T) {
		require.NoError(t, s.UpdateEmbedding(ctx, p.ID, []float32{1, 2, 3}, p.Revision))
		got, err := s.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, got.Embedding)
		assert.False(t, got.EmbeddingUpdatedAt.IsZero())
	})

	t.Run("stale revision rejected", func(t *testing.T) {
		err := s.UpdateEmbedding(ctx, p.ID, []float32{9}, p.Revision+5)
		assert.ErrorIs(t, err, ErrStaleRevision)

		got, err := s.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, got.Embedding)
	})

	t.Run("missing project", func(t *testing.T) {
		err := s.UpdateEmbedding(ctx, 12345, []float32{1}, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSearchLexical_Visibility(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	m1 := createUser(t, s, "m1@example.com", types.RoleMentor)
	m2 := createUser(t, s, "m2@example.com", types.RoleMentor)

	pub := createProject(t, s, &Project{MentorID: m1.ID, Title: "Public", Status: types.StatusPublished}, 3)
	draft1 := createProject(t, s, &Project{MentorID: m1.ID, Title: "Draft one"}, 2)
	draft2 := createProject(t, s, &Project{MentorID: m2.ID, Title: "Draft two"}, 1)

	tests := []struct {
		name   string
		viewer types.Viewer
		want   []int64
	}{
		{"admin", types.Viewer{UserID: 100, Role: types.RoleAdmin}, []int64{draft2.ID, draft1.ID, pub.ID}},
		{"mentor one", types.Viewer{UserID: m1.ID, Role: types.RoleMentor}, []int64{draft1.ID, pub.ID}},
		{"mentor two", types.Viewer{UserID: m2.ID, Role: types.RoleMentor}, []int64{draft2.ID, pub.ID}},
		{"student", types.Viewer{UserID: 5, Role: types.RoleStudent}, []int64{pub.ID}},
		{"teacher", types.Viewer{UserID: 5, Role: types.RoleTeacher}, []int64{pub.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := s.SearchLexical(ctx, LexicalQuery{Viewer: tt.viewer})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchLexical_TextAndFilters(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	m := createUser(t, s, "m@example.com", types.RoleMentor)
	admin := types.Viewer{UserID: 1, Role: types.RoleAdmin}

	a := createProject(t, s, &Project{MentorID: m.ID, Title: "Graph Databases", Tags: "db, graphs", Difficulty: types.DifficultyHard, ThesisOK: true}, 2)
	b := createProject(t, s, &Project{MentorID: m.ID, Title: "Web app", Goal: "graph visualisation", RequiredSkills: "React", PracticeOK: true}, 1)
	c := createProject(t, s, &Project{MentorID: m.ID, Title: "100% coverage", KeyTasks: "write_tests"}, 0)

	hard := types.DifficultyHard
	yes := true

	tests := []struct {
		name string
		q    LexicalQuery
		want []int64
	}{
		{"text matches title or goal", LexicalQuery{Viewer: admin, Text: "GRAPH"}, []int64{b.ID, a.ID}},
		{"percent is literal", LexicalQuery{Viewer: admin, Text: "100%"}, []int64{c.ID}},
		{"underscore is literal", LexicalQuery{Viewer: admin, Text: "e_t"}, []int64{c.ID}},
		{"difficulty", LexicalQuery{Viewer: admin, Filters: types.Filters{Difficulty: &hard}}, []int64{a.ID}},
		{"thesis", LexicalQuery{Viewer: admin, Filters: types.Filters{ThesisOK: &yes}}, []int64{a.ID}},
		{"tags", LexicalQuery{Viewer: admin, Filters: types.Filters{Tags: "Graphs"}}, []int64{a.ID}},
		{"skills", LexicalQuery{Viewer: admin, Filters: types.Filters{Skills: "react"}}, []int64{b.ID}},
		{"mentor", LexicalQuery{Viewer: admin, Filters: types.Filters{MentorID: &m.ID}}, []int64{c.ID, b.ID, a.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := s.SearchLexical(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestListProjects_Paging(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	m := createUser(t, s, "m@example.com", types.RoleMentor)

	var ids []int64
	for i := 0; i < 5; i++ {
		p := createProject(t, s, &Project{MentorID: m.ID, Title: "P", Status: types.StatusPublished}, 5-i)
		ids = append(ids, p.ID)
	}
	viewer := types.Viewer{UserID: 3, Role: types.RoleStudent}

	items, total, err := s.ListProjects(ctx, LexicalQuery{Viewer: viewer}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, items, 2)
	// newest first: ids[4], ids[3], ids[2], ...
	assert.Equal(t, ids[2], items[0].ID)
	assert.Equal(t, ids[1], items[1].ID)
	assert.Equal(t, "m@example.com", items[0].MentorEmail)

	items, total, err = s.ListProjects(ctx, LexicalQuery{Viewer: viewer}, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, items)
}

func TestGetSummaries_PreservesOrder(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	m := createUser(t, s, "m@example.com", types.RoleMentor)
	a := createProject(t, s, &Project{MentorID: m.ID, Title: "A"}, 0)
	b := createProject(t, s, &Project{MentorID: m.ID, Title: "B"}, 0)

	got, err := s.GetSummaries(ctx, []int64{b.ID, 999, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}

func TestListEmbeddedAndStats(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	m := createUser(t, s, "m@example.com", types.RoleMentor)
	a := createProject(t, s, &Project{MentorID: m.ID, Title: "A", Status: types.StatusPublished}, 0)
	createProject(t, s, &Project{MentorID: m.ID, Title: "B"}, 0)

	require.NoError(t, s.UpdateEmbedding(ctx, a.ID, []float32{0.1, 0.2}, a.Revision))

	embedded, err := s.ListEmbedded(ctx)
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	assert.Equal(t, a.ID, embedded[0].ID)
	assert.Equal(t, types.StatusPublished, embedded[0].Status)
	assert.Equal(t, m.ID, embedded[0].MentorID)

	stats, err := s.GetEmbeddingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Projects)
	assert.Equal(t, int64(1), stats.Embedded)
	assert.Equal(t, int64(1), stats.Missing)
}

func TestRelatedRecords(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	m := createUser(t, s, "m@example.com", types.RoleMentor)
	st := createUser(t, s, "s@example.com", types.RoleStudent)
	p := createProject(t, s, &Project{MentorID: m.ID, Title: "A"}, 0)

	require.NoError(t, s.CreateApplication(ctx, &Application{ProjectID: p.ID, StudentID: st.ID, Message: "hi"}))
	err := s.CreateApplication(ctx, &Application{ProjectID: p.ID, StudentID: st.ID})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	q1 := &Question{ProjectID: p.ID, AuthorID: st.ID, Text: "first?"}
	require.NoError(t, s.CreateQuestion(ctx, q1))
	q2 := &Question{ProjectID: p.ID, AuthorID: st.ID, Text: "second?"}
	require.NoError(t, s.CreateQuestion(ctx, q2))
	require.NoError(t, s.CreateAnswer(ctx, &Answer{QuestionID: q1.ID, ResponderID: m.ID, Text: "yes"}))

	require.NoError(t, s.CreateFeedback(ctx, &Feedback{ProjectID: p.ID, StudentID: st.ID, MentorID: m.ID, Type: "FINAL", Rating: 5}))

	apps, err := s.ListApplications(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, ApplicationPending, apps[0].Status)
	assert.Equal(t, "s@example.com", apps[0].StudentEmail)

	questions, err := s.ListQuestions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	byID := map[int64]*Question{}
	for _, q := range questions {
		byID[q.ID] = q
	}
	require.NotNil(t, byID[q1.ID].Answer)
	assert.Equal(t, "yes", byID[q1.ID].Answer.Text)
	assert.Nil(t, byID[q2.ID].Answer)

	fb, err := s.ListFeedback(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, fb, 1)
	assert.Equal(t, 5, fb[0].Rating)
	assert.Equal(t, m.Name, fb[0].MentorName)
}

func TestTransaction_RollbackDiscardsEmbedding(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	m := createUser(t, s, "m@example.com", types.RoleMentor)
	p := createProject(t, s, &Project{MentorID: m.ID, Title: "A"}, 0)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpdateEmbedding(ctx, p.ID, []float32{1}, p.Revision))
	require.NoError(t, tx.Rollback())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
	require.NoError(t, tx.UpdateEmbedding(ctx, p.ID, []float32{2}, p.Revision))
	require.NoError(t, tx.Commit())

	got, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, got.Embedding)
}

func TestNewSQLiteStorage_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &User{Email: "a@example.com", Name: "A", Role: types.RoleMentor}))
	require.NoError(t, s.Close())

	// Reopening keeps data and does not re-run applied migrations
	s, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)
}
