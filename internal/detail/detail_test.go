package detail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/pkg/types"
)

type seeded struct {
	store   *storage.SQLiteStorage
	mentor  *storage.User
	student *storage.User
	project *storage.Project
}

func seed(t *testing.T, status types.Status) *seeded {
	t.Helper()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	mentor := &storage.User{Email: "m@example.com", Name: "Mentor", Role: types.RoleMentor}
	student := &storage.User{Email: "s@example.com", Name: "Student", Role: types.RoleStudent}
	require.NoError(t, s.CreateUser(ctx, mentor))
	require.NoError(t, s.CreateUser(ctx, student))

	p := &storage.Project{MentorID: mentor.ID, Title: "Compilers", Status: status}
	require.NoError(t, s.CreateProject(ctx, p))

	require.NoError(t, s.CreateApplication(ctx, &storage.Application{ProjectID: p.ID, StudentID: student.ID, Message: "hi"}))
	q := &storage.Question{ProjectID: p.ID, AuthorID: student.ID, Visibility: "PUBLIC", Text: "Which language?"}
	require.NoError(t, s.CreateQuestion(ctx, q))
	require.NoError(t, s.CreateAnswer(ctx, &storage.Answer{QuestionID: q.ID, ResponderID: mentor.ID, Text: "Go"}))
	require.NoError(t, s.CreateFeedback(ctx, &storage.Feedback{
		ProjectID: p.ID, StudentID: student.ID, MentorID: mentor.ID, Type: "FINAL", Rating: 5, Comment: "great",
	}))

	return &seeded{store: s, mentor: mentor, student: student, project: p}
}

func TestFetch(t *testing.T) {
	sd := seed(t, types.StatusPublished)
	f := NewFetcher(sd.store, 0, zerolog.Nop())

	full, err := f.Fetch(context.Background(), types.Viewer{UserID: sd.mentor.ID, Role: types.RoleMentor}, sd.project.ID)
	require.NoError(t, err)

	assert.Equal(t, "Compilers", full.Project.Title)
	require.Len(t, full.Applications, 1)
	assert.Equal(t, "hi", full.Applications[0].Message)
	require.Len(t, full.Questions, 1)
	require.NotNil(t, full.Questions[0].Answer)
	assert.Equal(t, "Go", full.Questions[0].Answer.Text)
	require.Len(t, full.Feedback, 1)
	assert.Equal(t, 5, full.Feedback[0].Rating)
}

func TestFetch_Access(t *testing.T) {
	for _, status := range []types.Status{types.StatusPublished, types.StatusDraft} {
		sd := seed(t, status)
		f := NewFetcher(sd.store, 0, zerolog.Nop())
		ctx := context.Background()

		tests := []struct {
			name    string
			viewer  types.Viewer
			allowed bool
		}{
			{"student", types.Viewer{UserID: sd.student.ID, Role: types.RoleStudent}, false},
			{"teacher", types.Viewer{UserID: sd.student.ID, Role: types.RoleTeacher}, false},
			{"other mentor", types.Viewer{UserID: 4242, Role: types.RoleMentor}, false},
			{"owner id without mentor role", types.Viewer{UserID: sd.mentor.ID, Role: types.RoleStudent}, false},
			{"owning mentor", types.Viewer{UserID: sd.mentor.ID, Role: types.RoleMentor}, true},
			{"admin", types.Viewer{UserID: 4242, Role: types.RoleAdmin}, true},
		}
		for _, tt := range tests {
			t.Run(string(status)+"/"+tt.name, func(t *testing.T) {
				full, err := f.Fetch(ctx, tt.viewer, sd.project.ID)
				if !tt.allowed {
					assert.ErrorIs(t, err, storage.ErrNotFound)
					assert.Nil(t, full)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, sd.project.ID, full.Project.ID)
				assert.Len(t, full.Applications, 1)
			})
		}
	}
}

func TestFetch_NotFound(t *testing.T) {
	sd := seed(t, types.StatusPublished)
	f := NewFetcher(sd.store, 0, zerolog.Nop())

	_, err := f.Fetch(context.Background(), types.Viewer{Role: types.RoleAdmin}, 12345)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NotErrorIs(t, err, ErrTimeout)
}

// slowStore blocks ListFeedback until the context ends
type slowStore struct {
	storage.Storage
}

func (s slowStore) ListFeedback(ctx context.Context, projectID int64) ([]*storage.Feedback, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingStore fails ListQuestions immediately
type failingStore struct {
	storage.Storage
	err error
}

func (s failingStore) ListQuestions(ctx context.Context, projectID int64) ([]*storage.Question, error) {
	return nil, s.err
}

func TestFetch_Timeout(t *testing.T) {
	sd := seed(t, types.StatusPublished)
	f := NewFetcher(slowStore{sd.store}, 20*time.Millisecond, zerolog.Nop())

	start := time.Now()
	_, err := f.Fetch(context.Background(), types.Viewer{Role: types.RoleAdmin}, sd.project.ID)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetch_UnderlyingFailureIsNotTimeout(t *testing.T) {
	sd := seed(t, types.StatusPublished)
	boom := errors.New("disk on fire")
	f := NewFetcher(failingStore{Storage: sd.store, err: boom}, time.Second, zerolog.Nop())

	_, err := f.Fetch(context.Background(), types.Viewer{Role: types.RoleAdmin}, sd.project.ID)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimeout)
}
