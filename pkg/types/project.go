package types

import (
	"fmt"
	"strings"
	"time"
)

// Status is the project lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
)

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusDraft, StatusPublished, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Difficulty grades how demanding a project is.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// ParseDifficulty parses a difficulty name case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToUpper(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
}

// Role is the platform role of the user issuing a request.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleMentor  Role = "MENTOR"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleStudent, RoleTeacher, RoleMentor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Viewer identifies who is searching.
type Viewer struct {
	UserID int64
	Role   Role
}

// CanSee reports whether the viewer may see a project with the given status
// and mentor.
func (v Viewer) CanSee(status Status, mentorID int64) bool {
	switch v.Role {
	case RoleAdmin:
		return true
	case RoleMentor:
		return status == StatusPublished || mentorID == v.UserID
	default:
		return status == StatusPublished
	}
}

// ProjectSummary is the search-facing view of a project.
type ProjectSummary struct {
	ID              int64      `json:"id"`
	MentorID        int64      `json:"mentor_id"`
	MentorName      string     `json:"mentor_name,omitempty"`
	MentorEmail     string     `json:"mentor_email,omitempty"`
	Title           string     `json:"title"`
	Goal            string     `json:"goal,omitempty"`
	KeyTasks        string     `json:"key_tasks,omitempty"`
	RequiredSkills  string     `json:"required_skills,omitempty"`
	Tags            string     `json:"tags,omitempty"`
	CurriculumMatch string     `json:"curriculum_match,omitempty"`
	Difficulty      Difficulty `json:"difficulty,omitempty"`
	ThesisOK        bool       `json:"thesis_ok"`
	PracticeOK      bool       `json:"practice_ok"`
	CourseworkOK    bool       `json:"coursework_ok"`
	Status          Status     `json:"status"`
	HasEmbedding    bool       `json:"has_embedding"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
