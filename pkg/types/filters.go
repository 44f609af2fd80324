package types

import "strings"

// Filters are the structured search constraints. Nil pointers and blank
// strings leave a dimension unconstrained.
type Filters struct {
	Difficulty   *Difficulty
	ThesisOK     *bool
	PracticeOK   *bool
	CourseworkOK *bool
	Tags         string
	Skills       string
	MentorID     *int64
}

// RequireThesis reports whether only thesis-eligible projects match.
func (f Filters) RequireThesis() bool { return f.ThesisOK != nil && *f.ThesisOK }

// RequirePractice reports whether only practice-eligible projects match.
func (f Filters) RequirePractice() bool { return f.PracticeOK != nil && *f.PracticeOK }

// RequireCoursework reports whether only coursework-eligible projects match.
func (f Filters) RequireCoursework() bool { return f.CourseworkOK != nil && *f.CourseworkOK }

// Matches applies the filters to a project summary.
func (f Filters) Matches(p ProjectSummary) bool {
	if f.Difficulty != nil && p.Difficulty != *f.Difficulty {
		return false
	}
	if f.RequireThesis() && !p.ThesisOK {
		return false
	}
	if f.RequirePractice() && !p.PracticeOK {
		return false
	}
	if f.RequireCoursework() && !p.CourseworkOK {
		return false
	}
	if !containsFold(p.Tags, f.Tags) {
		return false
	}
	if !containsFold(p.RequiredSkills, f.Skills) {
		return false
	}
	if f.MentorID != nil && p.MentorID != *f.MentorID {
		return false
	}
	return true
}

// containsFold reports whether needle occurs in haystack ignoring case.
// A blank needle always matches.
func containsFold(haystack, needle string) bool {
	if strings.TrimSpace(needle) == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
