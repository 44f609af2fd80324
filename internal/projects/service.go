// Package projects performs project mutations for the entity store and
// announces them to the embedding pipeline once they have committed.
package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dshills/projsearch/internal/events"
	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/pkg/types"
)

var (
	// ErrInvalidProject wraps field validation failures
	ErrInvalidProject = errors.New("invalid project")

	// ErrUnknownMentor is returned when the owning user does not exist or
	// cannot own projects
	ErrUnknownMentor = errors.New("unknown mentor")
)

// Notifier receives committed mutations. *refresh.Pipeline implements it.
type Notifier interface {
	Notify(ctx context.Context, projectID int64, kind events.Kind) error
}

// Service creates and updates projects
type Service struct {
	store    storage.Storage
	notifier Notifier
	log      zerolog.Logger
}

// NewService creates a service; a nil notifier disables notifications
func NewService(store storage.Storage, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{store: store, notifier: notifier, log: log}
}

// Create inserts p and publishes a CREATED event after commit. Embedding
// generation never blocks or fails the create.
func (s *Service) Create(ctx context.Context, p *storage.Project) error {
	if err := validate(p); err != nil {
		return err
	}
	// Only the refresh pipeline writes embeddings
	p.Embedding = nil

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkMentor(ctx, tx, p.MentorID); err != nil {
		return err
	}
	if err := tx.CreateProject(ctx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(ctx, p.ID, events.KindCreated)
	return nil
}

// Update writes p's editable fields and publishes an UPDATED event after
// commit. The stored embedding is kept until the pipeline replaces it.
func (s *Service) Update(ctx context.Context, p *storage.Project) error {
	if err := validate(p); err != nil {
		return err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := tx.GetProject(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.MentorID != 0 && p.MentorID != existing.MentorID {
		return fmt.Errorf("%w: mentor cannot be changed", ErrInvalidProject)
	}
	p.MentorID = existing.MentorID

	if err := tx.UpdateProject(ctx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(ctx, p.ID, events.KindUpdated)
	return nil
}

// notify publishes without failing the already committed mutation
func (s *Service) notify(ctx context.Context, projectID int64, kind events.Kind) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, projectID, kind); err != nil {
		s.log.Warn().Err(err).Int64("project_id", projectID).Str("kind", string(kind)).
			Msg("failed to publish project event; embedding will refresh on next regenerate")
	}
}

func checkMentor(ctx context.Context, store storage.Storage, mentorID int64) error {
	mentor, err := store.GetUser(ctx, mentorID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrUnknownMentor, mentorID)
	}
	if err != nil {
		return err
	}
	if mentor.Role != types.RoleMentor && mentor.Role != types.RoleAdmin {
		return fmt.Errorf("%w: user %d is a %s", ErrUnknownMentor, mentorID, mentor.Role)
	}
	return nil
}

func validate(p *storage.Project) error {
	if p == nil {
		return fmt.Errorf("%w: nil project", ErrInvalidProject)
	}
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidProject)
	}
	if p.Difficulty != "" {
		if _, err := types.ParseDifficulty(string(p.Difficulty)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProject, err)
		}
	}
	if p.Status == "" {
		p.Status = types.StatusDraft
	}
	if _, err := types.ParseStatus(string(p.Status)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	return nil
}
