package storage

import (
	"context"
	"time"

	"github.com/dshills/projsearch/pkg/types"
)

// Storage defines the interface for persisting and querying projects and
// their related records
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)

	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	UpdateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id int64) (*Project, error)
	ListProjectIDs(ctx context.Context) ([]int64, error)

	// Search operations
	SearchLexical(ctx context.Context, query LexicalQuery) ([]int64, error)
	ListProjects(ctx context.Context, query LexicalQuery, offset, limit int) ([]types.ProjectSummary, int64, error)
	GetSummaries(ctx context.Context, ids []int64) ([]types.ProjectSummary, error)

	// Embedding operations
	ListEmbedded(ctx context.Context) ([]EmbeddedProject, error)
	UpdateEmbedding(ctx context.Context, projectID int64, vector []float32, revision int64) error
	GetEmbeddingStats(ctx context.Context) (*EmbeddingStats, error)

	// Related records
	CreateApplication(ctx context.Context, app *Application) error
	ListApplications(ctx context.Context, projectID int64) ([]*Application, error)
	CreateQuestion(ctx context.Context, question *Question) error
	CreateAnswer(ctx context.Context, answer *Answer) error
	ListQuestions(ctx context.Context, projectID int64) ([]*Question, error)
	CreateFeedback(ctx context.Context, feedback *Feedback) error
	ListFeedback(ctx context.Context, projectID int64) ([]*Feedback, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// User is a platform account. Mentors own projects.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      types.Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Project is a mentor-proposed project offered to students
type Project struct {
	ID                       int64
	MentorID                 int64
	MentorName               string // read-only, joined from users
	MentorEmail              string // read-only, joined from users
	Title                    string
	Goal                     string
	KeyTasks                 string
	ValueText                string
	RequiredSkills           string
	Tags                     string
	CurriculumMatch          string
	ResponsibilityBoundaries string
	ContactPolicy            string
	Difficulty               types.Difficulty // empty when unset
	ThesisOK                 bool
	PracticeOK               bool
	CourseworkOK             bool
	Status                   types.Status

	// Revision increments on every UpdateProject. Embedding writes are
	// conditional on it so a stale vector never overwrites a newer edit.
	Revision int64

	Embedding          []float32 // nil when absent
	EmbeddingUpdatedAt time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Summary converts the project to its search-facing view
func (p *Project) Summary() types.ProjectSummary {
	return types.ProjectSummary{
		ID:              p.ID,
		MentorID:        p.MentorID,
		MentorName:      p.MentorName,
		MentorEmail:     p.MentorEmail,
		Title:           p.Title,
		Goal:            p.Goal,
		KeyTasks:        p.KeyTasks,
		RequiredSkills:  p.RequiredSkills,
		Tags:            p.Tags,
		CurriculumMatch: p.CurriculumMatch,
		Difficulty:      p.Difficulty,
		ThesisOK:        p.ThesisOK,
		PracticeOK:      p.PracticeOK,
		CourseworkOK:    p.CourseworkOK,
		Status:          p.Status,
		HasEmbedding:    len(p.Embedding) > 0,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// LexicalQuery describes the SQL side of a search: who is asking, the
// optional text to match, and the structured filters
type LexicalQuery struct {
	Viewer  types.Viewer
	Text    string // blank means no text predicate
	Filters types.Filters
}

// EmbeddedProject is the projection scanned by semantic search
type EmbeddedProject struct {
	ID        int64
	MentorID  int64
	Status    types.Status
	Embedding []float32
}

// EmbeddingStats summarises embedding coverage
type EmbeddingStats struct {
	Projects int64
	Embedded int64
	Missing  int64
}

// ApplicationStatus is the review state of a student application
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationApproved ApplicationStatus = "APPROVED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// Application is a student's request to join a project
type Application struct {
	ID           int64
	ProjectID    int64
	StudentID    int64
	StudentName  string
	StudentEmail string
	Message      string
	Status       ApplicationStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Question is asked about a project; it has at most one Answer
type Question struct {
	ID         int64
	ProjectID  int64
	AuthorID   int64
	AuthorName string
	Visibility string // PUBLIC or PRIVATE
	Text       string
	CreatedAt  time.Time
	Answer     *Answer
}

// Answer responds to a Question
type Answer struct {
	ID            int64
	QuestionID    int64
	ResponderID   int64
	ResponderName string
	Text          string
	CreatedAt     time.Time
}

// Feedback is a mentor's evaluation of a student on a project
type Feedback struct {
	ID          int64
	ProjectID   int64
	StudentID   int64
	StudentName string
	MentorID    int64
	MentorName  string
	Type        string // INTERIM or FINAL
	Rating      int
	Comment     string
	CreatedAt   time.Time
}
