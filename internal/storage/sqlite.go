package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/projsearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrStaleRevision is returned when an embedding write targets a project
	// revision that has since been superseded
	ErrStaleRevision = errors.New("stale project revision")
)

// maxInParams bounds the number of placeholders in one IN (...) clause
const maxInParams = 500

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// busyTimeoutMs is how long a connection waits on a locked database
const busyTimeoutMs = 5000

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure. Both
// drivers surface the SQLite message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// User operations

func (s *SQLiteStorage) createUserWithQuerier(ctx context.Context, q querier, user *User) error {
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, `
		INSERT INTO users (email, name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.Email, user.Name, string(user.Role), now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Email, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *User) error {
	return s.createUserWithQuerier(ctx, s.querier(), user)
}

func (s *SQLiteStorage) getUserWithQuerier(ctx context.Context, q querier, id int64) (*User, error) {
	var user User
	var role string
	err := q.QueryRowContext(ctx, `
		SELECT id, email, name, role, created_at, updated_at
		FROM users
		WHERE id = ?
	`, id).Scan(&user.ID, &user.Email, &user.Name, &role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Role = types.Role(role)
	return &user, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.getUserWithQuerier(ctx, s.querier(), id)
}

// Project operations

// createProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (
			mentor_id, title, goal, key_tasks, value_text, required_skills, tags,
			curriculum_match, responsibility_boundaries, contact_policy, difficulty,
			thesis_ok, practice_ok, coursework_ok, status, revision, embedding,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	`
	if project.Status == "" {
		project.Status = types.StatusDraft
	}
	created := project.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	result, err := q.ExecContext(ctx, query,
		project.MentorID, project.Title, project.Goal, project.KeyTasks, project.ValueText,
		project.RequiredSkills, project.Tags, project.CurriculumMatch,
		project.ResponsibilityBoundaries, project.ContactPolicy, nullString(string(project.Difficulty)),
		project.ThesisOK, project.PracticeOK, project.CourseworkOK, string(project.Status),
		nullVector(project.Embedding), created, created)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.Revision = 1
	project.CreatedAt = created
	project.UpdatedAt = created
	return nil
}

func (s *SQLiteStorage) CreateProject(ctx context.Context, project *Project) error {
	return s.createProjectWithQuerier(ctx, s.querier(), project)
}

// updateProjectWithQuerier writes every editable field and bumps the
// revision. The embedding column is never touched here.
func (s *SQLiteStorage) updateProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		UPDATE projects
		SET title = ?, goal = ?, key_tasks = ?, value_text = ?, required_skills = ?,
		    tags = ?, curriculum_match = ?, responsibility_boundaries = ?, contact_policy = ?,
		    difficulty = ?, thesis_ok = ?, practice_ok = ?, coursework_ok = ?, status = ?,
		    revision = revision + 1, updated_at = ?
		WHERE id = ?
	`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		project.Title, project.Goal, project.KeyTasks, project.ValueText, project.RequiredSkills,
		project.Tags, project.CurriculumMatch, project.ResponsibilityBoundaries, project.ContactPolicy,
		nullString(string(project.Difficulty)), project.ThesisOK, project.PracticeOK, project.CourseworkOK,
		string(project.Status), now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := q.QueryRowContext(ctx, "SELECT revision FROM projects WHERE id = ?", project.ID).Scan(&project.Revision); err != nil {
		return err
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateProject(ctx context.Context, project *Project) error {
	return s.updateProjectWithQuerier(ctx, s.querier(), project)
}

const projectColumns = `
	p.id, p.mentor_id, COALESCE(u.name, ''), COALESCE(u.email, ''), p.title,
	COALESCE(p.goal, ''), COALESCE(p.key_tasks, ''), COALESCE(p.value_text, ''),
	COALESCE(p.required_skills, ''), COALESCE(p.tags, ''), COALESCE(p.curriculum_match, ''),
	COALESCE(p.responsibility_boundaries, ''), COALESCE(p.contact_policy, ''),
	COALESCE(p.difficulty, ''), p.thesis_ok, p.practice_ok, p.coursework_ok, p.status,
	p.revision, p.embedding, p.embedding_updated_at, p.created_at, p.updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var difficulty, status string
	var embedding sql.NullString
	var embeddedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.MentorID, &p.MentorName, &p.MentorEmail, &p.Title,
		&p.Goal, &p.KeyTasks, &p.ValueText,
		&p.RequiredSkills, &p.Tags, &p.CurriculumMatch,
		&p.ResponsibilityBoundaries, &p.ContactPolicy,
		&difficulty, &p.ThesisOK, &p.PracticeOK, &p.CourseworkOK, &status,
		&p.Revision, &embedding, &embeddedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Difficulty = types.Difficulty(difficulty)
	p.Status = types.Status(status)
	if embeddedAt.Valid {
		p.EmbeddingUpdatedAt = embeddedAt.Time
	}
	if embedding.Valid {
		vec, err := ParseVector(embedding.String)
		if err != nil {
			return nil, fmt.Errorf("project %d: %w", p.ID, err)
		}
		p.Embedding = vec
	}
	return &p, nil
}

// getProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, id int64) (*Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM projects p
		LEFT JOIN users u ON u.id = p.mentor_id
		WHERE p.id = ?
	`
	project, err := scanProject(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *SQLiteStorage) GetProject(ctx context.Context, id int64) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) listProjectIDsWithQuerier(ctx context.Context, q querier) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return scanIDs(rows)
}

func (s *SQLiteStorage) ListProjectIDs(ctx context.Context) ([]int64, error) {
	return s.listProjectIDsWithQuerier(ctx, s.querier())
}

// Search operations

// escapeLike escapes LIKE wildcards so user text matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func likePattern(s string) string {
	return "%" + escapeLike(strings.ToLower(s)) + "%"
}

// buildLexicalWhere renders the visibility, text and filter predicates.
// SQLite LOWER folds ASCII only, so non-ASCII text matches case-sensitively.
func buildLexicalWhere(lq LexicalQuery) (string, []interface{}) {
	clauses := []string{"1=1"}
	var args []interface{}

	switch lq.Viewer.Role {
	case types.RoleAdmin:
		// admin sees everything
	case types.RoleMentor:
		clauses = append(clauses, "(p.status = ? OR p.mentor_id = ?)")
		args = append(args, string(types.StatusPublished), lq.Viewer.UserID)
	default:
		clauses = append(clauses, "p.status = ?")
		args = append(args, string(types.StatusPublished))
	}

	if text := strings.TrimSpace(lq.Text); text != "" {
		pattern := likePattern(text)
		clauses = append(clauses, `(LOWER(p.title) LIKE ? ESCAPE '\' OR LOWER(COALESCE(p.goal, '')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(p.key_tasks, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	f := lq.Filters
	if f.Difficulty != nil {
		clauses = append(clauses, "p.difficulty = ?")
		args = append(args, string(*f.Difficulty))
	}
	if f.RequireThesis() {
		clauses = append(clauses, "p.thesis_ok = 1")
	}
	if f.RequirePractice() {
		clauses = append(clauses, "p.practice_ok = 1")
	}
	if f.RequireCoursework() {
		clauses = append(clauses, "p.coursework_ok = 1")
	}
	if strings.TrimSpace(f.Tags) != "" {
		clauses = append(clauses, `LOWER(COALESCE(p.tags, '')) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Tags))
	}
	if strings.TrimSpace(f.Skills) != "" {
		clauses = append(clauses, `LOWER(COALESCE(p.required_skills, '')) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Skills))
	}
	if f.MentorID != nil {
		clauses = append(clauses, "p.mentor_id = ?")
		args = append(args, *f.MentorID)
	}

	return strings.Join(clauses, " AND "), args
}

// searchLexicalWithQuerier returns every matching id, newest first
func (s *SQLiteStorage) searchLexicalWithQuerier(ctx context.Context, q querier, lq LexicalQuery) ([]int64, error) {
	where, args := buildLexicalWhere(lq)
	query := `SELECT p.id FROM projects p WHERE ` + where + ` ORDER BY p.created_at DESC, p.id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	return scanIDs(rows)
}

func (s *SQLiteStorage) SearchLexical(ctx context.Context, lq LexicalQuery) ([]int64, error) {
	return s.searchLexicalWithQuerier(ctx, s.querier(), lq)
}

// listProjectsWithQuerier pages through matching projects newest first and
// returns the total match count
func (s *SQLiteStorage) listProjectsWithQuerier(ctx context.Context, q querier, lq LexicalQuery, offset, limit int) ([]types.ProjectSummary, int64, error) {
	where, args := buildLexicalWhere(lq)

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects p WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	query := `SELECT ` + projectColumns + `
		FROM projects p
		LEFT JOIN users u ON u.id = p.mentor_id
		WHERE ` + where + `
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ? OFFSET ?`
	rows, err := q.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]types.ProjectSummary, 0, limit)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *SQLiteStorage) ListProjects(ctx context.Context, lq LexicalQuery, offset, limit int) ([]types.ProjectSummary, int64, error) {
	return s.listProjectsWithQuerier(ctx, s.querier(), lq, offset, limit)
}

// getSummariesWithQuerier loads summaries for ids and returns them in the
// order given. Ids that no longer exist are skipped.
func (s *SQLiteStorage) getSummariesWithQuerier(ctx context.Context, q querier, ids []int64) ([]types.ProjectSummary, error) {
	byID := make(map[int64]types.ProjectSummary, len(ids))

	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]interface{}, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		query := `SELECT ` + projectColumns + `
			FROM projects p
			LEFT JOIN users u ON u.id = p.mentor_id
			WHERE p.id IN (` + placeholders + `)`
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to load projects: %w", err)
		}
		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			byID[p.ID] = p.Summary()
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}

	out := make([]types.ProjectSummary, 0, len(ids))
	for _, id := range ids {
		if sum, ok := byID[id]; ok {
			out = append(out, sum)
		}
	}
	return out, nil
}

func (s *SQLiteStorage) GetSummaries(ctx context.Context, ids []int64) ([]types.ProjectSummary, error) {
	return s.getSummariesWithQuerier(ctx, s.querier(), ids)
}

// Embedding operations

// listEmbeddedWithQuerier scans every project that has an embedding. Rows
// whose stored vector fails to parse are skipped.
func (s *SQLiteStorage) listEmbeddedWithQuerier(ctx context.Context, q querier) ([]EmbeddedProject, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, mentor_id, status, embedding
		FROM projects
		WHERE embedding IS NOT NULL AND embedding != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EmbeddedProject
	for rows.Next() {
		var ep EmbeddedProject
		var status, literal string
		if err := rows.Scan(&ep.ID, &ep.MentorID, &status, &literal); err != nil {
			return nil, err
		}
		vec, err := ParseVector(literal)
		if err != nil || len(vec) == 0 {
			continue
		}
		ep.Status = types.Status(status)
		ep.Embedding = vec
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ListEmbedded(ctx context.Context) ([]EmbeddedProject, error) {
	return s.listEmbeddedWithQuerier(ctx, s.querier())
}

// updateEmbeddingWithQuerier writes only the embedding column, and only if
// the project is still at the given revision
func (s *SQLiteStorage) updateEmbeddingWithQuerier(ctx context.Context, q querier, projectID int64, vector []float32, revision int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE projects
		SET embedding = ?, embedding_updated_at = ?
		WHERE id = ? AND revision = ?
	`, nullVector(vector), time.Now().UTC(), projectID, revision)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, "SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrStaleRevision
}

func (s *SQLiteStorage) UpdateEmbedding(ctx context.Context, projectID int64, vector []float32, revision int64) error {
	return s.updateEmbeddingWithQuerier(ctx, s.querier(), projectID, vector, revision)
}

func (s *SQLiteStorage) getEmbeddingStatsWithQuerier(ctx context.Context, q querier) (*EmbeddingStats, error) {
	var stats EmbeddingStats
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN embedding IS NOT NULL AND embedding != '' THEN 1 ELSE 0 END), 0)
		FROM projects
	`).Scan(&stats.Projects, &stats.Embedded)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding stats: %w", err)
	}
	stats.Missing = stats.Projects - stats.Embedded
	return &stats, nil
}

func (s *SQLiteStorage) GetEmbeddingStats(ctx context.Context) (*EmbeddingStats, error) {
	return s.getEmbeddingStatsWithQuerier(ctx, s.querier())
}

// Related records

func (s *SQLiteStorage) createApplicationWithQuerier(ctx context.Context, q querier, app *Application) error {
	if app.Status == "" {
		app.Status = ApplicationPending
	}
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, `
		INSERT INTO applications (project_id, student_id, message, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, app.ProjectID, app.StudentID, app.Message, string(app.Status), now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("application for project %d: %w", app.ProjectID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	app.ID = id
	app.CreatedAt = now
	app.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateApplication(ctx context.Context, app *Application) error {
	return s.createApplicationWithQuerier(ctx, s.querier(), app)
}

func (s *SQLiteStorage) listApplicationsWithQuerier(ctx context.Context, q querier, projectID int64) ([]*Application, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.project_id, a.student_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
		       COALESCE(a.message, ''), a.status, a.created_at, a.updated_at
		FROM applications a
		LEFT JOIN users u ON u.id = a.student_id
		WHERE a.project_id = ?
		ORDER BY a.created_at DESC, a.id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apps []*Application
	for rows.Next() {
		var a Application
		var status string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.StudentID, &a.StudentName, &a.StudentEmail,
			&a.Message, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Status = ApplicationStatus(status)
		apps = append(apps, &a)
	}
	return apps, rows.Err()
}

func (s *SQLiteStorage) ListApplications(ctx context.Context, projectID int64) ([]*Application, error) {
	return s.listApplicationsWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) createQuestionWithQuerier(ctx context.Context, q querier, question *Question) error {
	if question.Visibility == "" {
		question.Visibility = "PUBLIC"
	}
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, `
		INSERT INTO questions (project_id, author_id, visibility, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, question.ProjectID, question.AuthorID, question.Visibility, question.Text, now)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	question.ID = id
	question.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateQuestion(ctx context.Context, question *Question) error {
	return s.createQuestionWithQuerier(ctx, s.querier(), question)
}

func (s *SQLiteStorage) createAnswerWithQuerier(ctx context.Context, q querier, answer *Answer) error {
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, `
		INSERT INTO answers (question_id, responder_id, text, created_at)
		VALUES (?, ?, ?, ?)
	`, answer.QuestionID, answer.ResponderID, answer.Text, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("answer for question %d: %w", answer.QuestionID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	answer.ID = id
	answer.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateAnswer(ctx context.Context, answer *Answer) error {
	return s.createAnswerWithQuerier(ctx, s.querier(), answer)
}

// listQuestionsWithQuerier returns questions newest first with their answer
// attached
func (s *SQLiteStorage) listQuestionsWithQuerier(ctx context.Context, q querier, projectID int64) ([]*Question, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT qn.id, qn.project_id, qn.author_id, COALESCE(au.name, ''), qn.visibility, qn.text, qn.created_at,
		       an.id, an.responder_id, COALESCE(ru.name, ''), an.text, an.created_at
		FROM questions qn
		LEFT JOIN users au ON au.id = qn.author_id
		LEFT JOIN answers an ON an.question_id = qn.id
		LEFT JOIN users ru ON ru.id = an.responder_id
		WHERE qn.project_id = ?
		ORDER BY qn.created_at DESC, qn.id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []*Question
	for rows.Next() {
		var qn Question
		var answerID, responderID sql.NullInt64
		var responderName string
		var answerText sql.NullString
		var answeredAt sql.NullTime
		if err := rows.Scan(&qn.ID, &qn.ProjectID, &qn.AuthorID, &qn.AuthorName, &qn.Visibility, &qn.Text, &qn.CreatedAt,
			&answerID, &responderID, &responderName, &answerText, &answeredAt); err != nil {
			return nil, err
		}
		if answerID.Valid {
			qn.Answer = &Answer{
				ID:            answerID.Int64,
				QuestionID:    qn.ID,
				ResponderID:   responderID.Int64,
				ResponderName: responderName,
				Text:          answerText.String,
				CreatedAt:     answeredAt.Time,
			}
		}
		questions = append(questions, &qn)
	}
	return questions, rows.Err()
}

func (s *SQLiteStorage) ListQuestions(ctx context.Context, projectID int64) ([]*Question, error) {
	return s.listQuestionsWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) createFeedbackWithQuerier(ctx context.Context, q querier, fb *Feedback) error {
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, `
		INSERT INTO feedback (project_id, student_id, mentor_id, type, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, fb.ProjectID, fb.StudentID, fb.MentorID, fb.Type, fb.Rating, fb.Comment, now)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	fb.ID = id
	fb.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateFeedback(ctx context.Context, fb *Feedback) error {
	return s.createFeedbackWithQuerier(ctx, s.querier(), fb)
}

func (s *SQLiteStorage) listFeedbackWithQuerier(ctx context.Context, q querier, projectID int64) ([]*Feedback, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT f.id, f.project_id, f.student_id, COALESCE(su.name, ''), f.mentor_id, COALESCE(mu.name, ''),
		       f.type, f.rating, COALESCE(f.comment, ''), f.created_at
		FROM feedback f
		LEFT JOIN users su ON su.id = f.student_id
		LEFT JOIN users mu ON mu.id = f.mentor_id
		WHERE f.project_id = ?
		ORDER BY f.created_at DESC, f.id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.StudentID, &f.StudentName, &f.MentorID, &f.MentorName,
			&f.Type, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ListFeedback(ctx context.Context, projectID int64) ([]*Feedback, error) {
	return s.listFeedbackWithQuerier(ctx, s.querier(), projectID)
}

// Helpers

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Transaction method implementations

func (t *sqliteTx) CreateUser(ctx context.Context, user *User) error {
	return t.storage.createUserWithQuerier(ctx, t.querier(), user)
}

func (t *sqliteTx) GetUser(ctx context.Context, id int64) (*User, error) {
	return t.storage.getUserWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return t.storage.createProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return t.storage.updateProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, id int64) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListProjectIDs(ctx context.Context) ([]int64, error) {
	return t.storage.listProjectIDsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) SearchLexical(ctx context.Context, lq LexicalQuery) ([]int64, error) {
	return t.storage.searchLexicalWithQuerier(ctx, t.querier(), lq)
}

func (t *sqliteTx) ListProjects(ctx context.Context, lq LexicalQuery, offset, limit int) ([]types.ProjectSummary, int64, error) {
	return t.storage.listProjectsWithQuerier(ctx, t.querier(), lq, offset, limit)
}

func (t *sqliteTx) GetSummaries(ctx context.Context, ids []int64) ([]types.ProjectSummary, error) {
	return t.storage.getSummariesWithQuerier(ctx, t.querier(), ids)
}

func (t *sqliteTx) ListEmbedded(ctx context.Context) ([]EmbeddedProject, error) {
	return t.storage.listEmbeddedWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpdateEmbedding(ctx context.Context, projectID int64, vector []float32, revision int64) error {
	return t.storage.updateEmbeddingWithQuerier(ctx, t.querier(), projectID, vector, revision)
}

func (t *sqliteTx) GetEmbeddingStats(ctx context.Context) (*EmbeddingStats, error) {
	return t.storage.getEmbeddingStatsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) CreateApplication(ctx context.Context, app *Application) error {
	return t.storage.createApplicationWithQuerier(ctx, t.querier(), app)
}

func (t *sqliteTx) ListApplications(ctx context.Context, projectID int64) ([]*Application, error) {
	return t.storage.listApplicationsWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) CreateQuestion(ctx context.Context, question *Question) error {
	return t.storage.createQuestionWithQuerier(ctx, t.querier(), question)
}

func (t *sqliteTx) CreateAnswer(ctx context.Context, answer *Answer) error {
	return t.storage.createAnswerWithQuerier(ctx, t.querier(), answer)
}

func (t *sqliteTx) ListQuestions(ctx context.Context, projectID int64) ([]*Question, error) {
	return t.storage.listQuestionsWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) CreateFeedback(ctx context.Context, fb *Feedback) error {
	return t.storage.createFeedbackWithQuerier(ctx, t.querier(), fb)
}

func (t *sqliteTx) ListFeedback(ctx context.Context, projectID int64) ([]*Feedback, error) {
	return t.storage.listFeedbackWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
