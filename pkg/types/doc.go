// Package types provides shared type definitions for the project search service.
//
// It holds the vocabulary every layer agrees on: project lifecycle status,
// difficulty, viewer roles and the visibility rule derived from them, the
// structured search filters, and the paged result returned to callers.
//
// # Visibility
//
// A Viewer sees a project according to its role:
//
//	ADMIN            every project
//	MENTOR           PUBLISHED projects and projects they mentor
//	STUDENT/TEACHER  PUBLISHED projects only
//
// The same rule is applied as a SQL predicate by storage and as an in-memory
// predicate (Viewer.CanSee) on semantic candidates.
//
// # Filters
//
// Filters.Matches mirrors the SQL filter predicate. Boolean filters only
// constrain when set to true; Tags and Skills are case-insensitive substring
// matches.
package types
