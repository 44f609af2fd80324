// Package detail assembles the full view of one project: the project
// itself plus its applications, questions with answers, and feedback.
package detail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/pkg/types"
)

// DefaultTimeout bounds the concurrent reads of one Fetch
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when the related reads do not finish in time.
// It is distinct from the errors of the reads themselves.
var ErrTimeout = errors.New("project detail fetch timed out")

// FullProject is a project with its related records
type FullProject struct {
	Project      *storage.Project
	Applications []*storage.Application
	Questions    []*storage.Question
	Feedback     []*storage.Feedback
}

// Fetcher loads FullProject views
type Fetcher struct {
	store   storage.Storage
	timeout time.Duration
	log     zerolog.Logger
}

// NewFetcher creates a fetcher; a non-positive timeout selects DefaultTimeout
func NewFetcher(store storage.Storage, timeout time.Duration, log zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{store: store, timeout: timeout, log: log}
}

// Fetch returns the project and its related records. Only the project's
// mentor and admins may read the full view; anyone else gets
// storage.ErrNotFound.
func (f *Fetcher) Fetch(ctx context.Context, viewer types.Viewer, projectID int64) (*FullProject, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	project, err := f.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, f.wrap(ctx, err)
	}
	if !canReadFull(viewer, project) {
		return nil, storage.ErrNotFound
	}

	full := &FullProject{Project: project}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		apps, err := f.store.ListApplications(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load applications: %w", err)
		}
		full.Applications = apps
		return nil
	})
	g.Go(func() error {
		questions, err := f.store.ListQuestions(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load questions: %w", err)
		}
		full.Questions = questions
		return nil
	})
	g.Go(func() error {
		feedback, err := f.store.ListFeedback(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load feedback: %w", err)
		}
		full.Feedback = feedback
		return nil
	})

	if err := g.Wait(); err != nil {
		err = f.wrap(ctx, err)
		f.log.Warn().Err(err).Int64("project_id", projectID).Msg("project detail fetch failed")
		return nil, err
	}
	return full, nil
}

// canReadFull reports whether viewer may see applications, feedback and
// private questions of project
func canReadFull(viewer types.Viewer, project *storage.Project) bool {
	switch viewer.Role {
	case types.RoleAdmin:
		return true
	case types.RoleMentor:
		return viewer.UserID == project.MentorID
	}
	return false
}

func (f *Fetcher) wrap(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, f.timeout, err)
	}
	return err
}
