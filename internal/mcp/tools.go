package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/projsearch/internal/detail"
	"github.com/dshills/projsearch/internal/events"
	"github.com/dshills/projsearch/internal/refresh"
	"github.com/dshills/projsearch/internal/searcher"
	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/internal/vectormath"
	"github.com/dshills/projsearch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams          = -32602 // Invalid method parameters
	ErrorCodeInternalError          = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound        = -32001 // Project does not exist or is not visible
	ErrorCodeRegenerationInProgress = -32002 // Another regeneration run is active
	ErrorCodeTimeout                = -32003 // Operation exceeded its deadline; retryable
)

// handleSearchProjects handles the search_projects tool invocation
func (s *Server) handleSearchProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	viewer, err := parseViewer(args)
	if err != nil {
		return nil, err
	}

	filters, err := parseFilters(args)
	if err != nil {
		return nil, err
	}

	mode := searcher.SearchMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	if mode != searcher.SearchModeHybrid && mode != searcher.SearchModeSemantic && mode != searcher.SearchModeLexical {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":  "search_mode",
			"value":  mode,
			"reason": "must be one of: hybrid, semantic, lexical",
		})
	}

	pageNum, err := getIntDefault(args, "page", 0)
	if err != nil {
		return nil, err
	}
	pageSize, err := getIntDefault(args, "page_size", 0)
	if err != nil {
		return nil, err
	}

	req := searcher.SearchRequest{
		Query:    getStringDefault(args, "query", ""),
		Filters:  filters,
		Viewer:   viewer,
		Page:     pageNum,
		PageSize: pageSize,
		Mode:     mode,
	}

	page, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, toolError("search failed", err)
	}

	return mcp.NewToolResultText(formatJSON(page)), nil
}

// handleNotifyProjectMutation handles the notify_project_mutation tool invocation
func (s *Server) handleNotifyProjectMutation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, err := requireID(args, "project_id")
	if err != nil {
		return nil, err
	}

	kind, err := events.ParseKind(getStringDefault(args, "kind", string(events.KindUpdated)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid kind", map[string]interface{}{
			"param":  "kind",
			"reason": err.Error(),
		})
	}

	if err := s.pipeline.Notify(ctx, projectID, kind); err != nil {
		return nil, toolError("failed to queue refresh", err)
	}

	response := map[string]interface{}{
		"queued":     true,
		"project_id": projectID,
		"kind":       kind,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRegenerateEmbeddings handles the regenerate_embeddings tool invocation
func (s *Server) handleRegenerateEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.pipeline.RegenerateAll(ctx)
	if err != nil {
		return nil, toolError("regeneration failed", err)
	}

	response := map[string]interface{}{
		"total":       res.Total,
		"succeeded":   res.Succeeded,
		"failed":      res.Failed,
		"duration_ms": res.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetProjectFull handles the get_project_full tool invocation
func (s *Server) handleGetProjectFull(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, err := requireID(args, "project_id")
	if err != nil {
		return nil, err
	}
	viewer, err := parseViewer(args)
	if err != nil {
		return nil, err
	}

	full, err := s.fetcher.Fetch(ctx, viewer, projectID)
	if err != nil {
		return nil, toolError("failed to load project", err)
	}

	return mcp.NewToolResultText(formatJSON(fullProjectView(full))), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	stats, err := s.storage.GetEmbeddingStats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"projects":     stats.Projects,
		"embedded":     stats.Embedded,
		"missing":      stats.Missing,
		"refresh":      s.pipeline.Tracker().Counts(),
		"regenerating": s.pipeline.Regenerating(),
		"build": map[string]interface{}{
			"mode":            storage.BuildMode,
			"driver":          storage.DriverName,
			"vector_strategy": vectormath.Active().Name(),
		},
	}

	if pending, err := s.pipeline.Queue().Pending(); err == nil {
		response["queue_pending"] = pending
	} else {
		s.log.Warn().Err(err).Msg("failed to read queue depth")
	}
	if s.cache != nil {
		response["query_cache"] = s.cache.Stats()
	}
	if s.pool != nil {
		response["workers"] = s.pool.Stats()
	}

	if raw, present := args["project_id"]; present && raw != nil {
		projectID, err := requireID(args, "project_id")
		if err != nil {
			return nil, err
		}
		project, err := s.storage.GetProject(ctx, projectID)
		if err != nil {
			return nil, toolError("failed to load project", err)
		}
		response["project"] = map[string]interface{}{
			"id":    projectID,
			"state": s.pipeline.Tracker().Resolve(projectID, len(project.Embedding) > 0),
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parseViewer reads viewer_id and viewer_role; the role defaults to STUDENT
func parseViewer(args map[string]interface{}) (types.Viewer, error) {
	role, err := types.ParseRole(getStringDefault(args, "viewer_role", string(types.RoleStudent)))
	if err != nil {
		return types.Viewer{}, newMCPError(ErrorCodeInvalidParams, "invalid viewer_role", map[string]interface{}{
			"param":  "viewer_role",
			"reason": err.Error(),
		})
	}
	id, _ := getInt64(args, "viewer_id")
	return types.Viewer{UserID: id, Role: role}, nil
}

// parseFilters reads the optional filters object
func parseFilters(args map[string]interface{}) (types.Filters, error) {
	var f types.Filters

	raw, present := args["filters"]
	if !present || raw == nil {
		return f, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return f, newMCPError(ErrorCodeInvalidParams, "filters must be an object", map[string]interface{}{
			"param": "filters",
		})
	}

	if d := getStringDefault(m, "difficulty", ""); d != "" {
		difficulty, err := types.ParseDifficulty(d)
		if err != nil {
			return f, newMCPError(ErrorCodeInvalidParams, "invalid difficulty", map[string]interface{}{
				"param":  "filters.difficulty",
				"reason": err.Error(),
			})
		}
		f.Difficulty = &difficulty
	}

	f.ThesisOK = getBoolPtr(m, "thesis_ok")
	f.PracticeOK = getBoolPtr(m, "practice_ok")
	f.CourseworkOK = getBoolPtr(m, "coursework_ok")
	f.Tags = getStringDefault(m, "tags", "")
	f.Skills = getStringDefault(m, "skills", "")
	if id, ok := getInt64(m, "mentor_id"); ok {
		f.MentorID = &id
	}

	return f, nil
}

func requireID(args map[string]interface{}, key string) (int64, error) {
	id, ok := getInt64(args, key)
	if !ok || id <= 0 {
		return 0, newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or not a positive integer",
		})
	}
	return id, nil
}

// toolError maps domain errors onto MCP error codes
func toolError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, searcher.ErrInvalidRequest),
		errors.Is(err, types.ErrInvalidPage),
		errors.Is(err, types.ErrInvalidPageSize),
		errors.Is(err, events.ErrUnknownKind):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	case errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeProjectNotFound, "project not found", data)
	case errors.Is(err, refresh.ErrRegenerationInProgress):
		return newMCPError(ErrorCodeRegenerationInProgress, "regeneration already in progress", data)
	case errors.Is(err, searcher.ErrSearchTimeout), errors.Is(err, detail.ErrTimeout):
		data["retryable"] = true
		return newMCPError(ErrorCodeTimeout, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// fullProjectView shapes a FullProject for JSON output
func fullProjectView(full *detail.FullProject) map[string]interface{} {
	p := full.Project

	apps := make([]map[string]interface{}, 0, len(full.Applications))
	for _, a := range full.Applications {
		apps = append(apps, map[string]interface{}{
			"id":            a.ID,
			"student_id":    a.StudentID,
			"student_name":  a.StudentName,
			"student_email": a.StudentEmail,
			"message":       a.Message,
			"status":        a.Status,
			"created_at":    a.CreatedAt.Format(time.RFC3339),
		})
	}

	questions := make([]map[string]interface{}, 0, len(full.Questions))
	for _, q := range full.Questions {
		item := map[string]interface{}{
			"id":          q.ID,
			"author_id":   q.AuthorID,
			"author_name": q.AuthorName,
			"visibility":  q.Visibility,
			"text":        q.Text,
			"created_at":  q.CreatedAt.Format(time.RFC3339),
		}
		if q.Answer != nil {
			item["answer"] = map[string]interface{}{
				"id":             q.Answer.ID,
				"responder_id":   q.Answer.ResponderID,
				"responder_name": q.Answer.ResponderName,
				"text":           q.Answer.Text,
				"created_at":     q.Answer.CreatedAt.Format(time.RFC3339),
			}
		}
		questions = append(questions, item)
	}

	feedback := make([]map[string]interface{}, 0, len(full.Feedback))
	for _, f := range full.Feedback {
		feedback = append(feedback, map[string]interface{}{
			"id":           f.ID,
			"student_id":   f.StudentID,
			"student_name": f.StudentName,
			"mentor_id":    f.MentorID,
			"mentor_name":  f.MentorName,
			"type":         f.Type,
			"rating":       f.Rating,
			"comment":      f.Comment,
			"created_at":   f.CreatedAt.Format(time.RFC3339),
		})
	}

	return map[string]interface{}{
		"project": map[string]interface{}{
			"id":                        p.ID,
			"mentor_id":                 p.MentorID,
			"mentor_name":               p.MentorName,
			"mentor_email":              p.MentorEmail,
			"title":                     p.Title,
			"goal":                      p.Goal,
			"key_tasks":                 p.KeyTasks,
			"value":                     p.ValueText,
			"required_skills":           p.RequiredSkills,
			"tags":                      p.Tags,
			"curriculum_match":          p.CurriculumMatch,
			"responsibility_boundaries": p.ResponsibilityBoundaries,
			"contact_policy":            p.ContactPolicy,
			"difficulty":                p.Difficulty,
			"thesis_ok":                 p.ThesisOK,
			"practice_ok":               p.PracticeOK,
			"coursework_ok":             p.CourseworkOK,
			"status":                    p.Status,
			"has_embedding":             len(p.Embedding) > 0,
			"created_at":                p.CreatedAt.Format(time.RFC3339),
			"updated_at":                p.UpdatedAt.Format(time.RFC3339),
		},
		"applications": apps,
		"questions":    questions,
		"feedback":     feedback,
	}
}

// newMCPError creates a structured MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents a structured MCP error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolPtr extracts an optional boolean; absent keys yield nil
func getBoolPtr(args map[string]interface{}, key string) *bool {
	if val, ok := args[key].(bool); ok {
		return &val
	}
	return nil
}

// getIntDefault extracts an integer parameter with a default value.
// Fractional or out-of-range numbers are rejected as invalid params.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) (int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	switch val := raw.(type) {
	case float64:
		if val == math.Trunc(val) && val >= math.MinInt32 && val <= math.MaxInt32 {
			return int(val), nil
		}
	case int:
		return val, nil
	}
	return 0, newMCPError(ErrorCodeInvalidParams, "invalid "+key, map[string]interface{}{
		"param":  key,
		"value":  raw,
		"reason": "must be an integer",
	})
}

// getInt64 extracts an integer id. JSON numbers arrive as float64; fractional
// or out-of-range values are rejected.
func getInt64(args map[string]interface{}, key string) (int64, bool) {
	switch val := args[key].(type) {
	case float64:
		// 2^63 is exactly representable; MaxInt64 as float64 rounds up to it
		if val != math.Trunc(val) || val < math.MinInt64 || val >= math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
