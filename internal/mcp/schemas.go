package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// viewerProperties describe who is asking; shared by tools that apply visibility
func viewerProperties() map[string]interface{} {
	return map[string]interface{}{
		"viewer_id": map[string]interface{}{
			"type":        "integer",
			"description": "Id of the user performing the request",
		},
		"viewer_role": map[string]interface{}{
			"type":        "string",
			"description": "Role of the requesting user; decides which projects are visible",
			"enum":        []string{"STUDENT", "TEACHER", "MENTOR", "ADMIN"},
			"default":     "STUDENT",
		},
	}
}

// searchProjectsTool returns the tool definition for search_projects
func searchProjectsTool() mcp.Tool {
	props := map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Free-text query; blank lists projects newest first",
		},
		"page": map[string]interface{}{
			"type":        "integer",
			"description": "0-indexed page number",
			"default":     0,
			"minimum":     0,
		},
		"page_size": map[string]interface{}{
			"type":        "integer",
			"description": "Items per page (1-100)",
			"default":     20,
			"minimum":     1,
			"maximum":     100,
		},
		"search_mode": map[string]interface{}{
			"type":        "string",
			"description": "Search strategy: hybrid (lexical + semantic), semantic (embedding only), or lexical (substring only)",
			"enum":        []string{"hybrid", "semantic", "lexical"},
			"default":     "hybrid",
		},
		"filters": map[string]interface{}{
			"type":        "object",
			"description": "Optional filters to narrow search",
			"properties": map[string]interface{}{
				"difficulty": map[string]interface{}{
					"type": "string",
					"enum": []string{"EASY", "MEDIUM", "HARD"},
				},
				"thesis_ok": map[string]interface{}{
					"type":        "boolean",
					"description": "When true, only projects usable as a thesis",
				},
				"practice_ok": map[string]interface{}{
					"type":        "boolean",
					"description": "When true, only projects usable as practice",
				},
				"coursework_ok": map[string]interface{}{
					"type":        "boolean",
					"description": "When true, only projects usable as coursework",
				},
				"tags": map[string]interface{}{
					"type":        "string",
					"description": "Case-insensitive substring of the project tags",
				},
				"skills": map[string]interface{}{
					"type":        "string",
					"description": "Case-insensitive substring of the required skills",
				},
				"mentor_id": map[string]interface{}{
					"type":        "integer",
					"description": "Only projects owned by this mentor",
				},
			},
		},
	}
	for k, v := range viewerProperties() {
		props[k] = v
	}

	return mcp.Tool{
		Name:        "search_projects",
		Description: "Search projects with free text and structured filters, ranked by lexical and semantic relevance",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
		},
	}
}

// notifyProjectMutationTool returns the tool definition for notify_project_mutation
func notifyProjectMutationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "notify_project_mutation",
		Description: "Announce a committed project create or update so its embedding is refreshed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_id": map[string]interface{}{
					"type":        "integer",
					"description": "Id of the created or updated project",
				},
				"kind": map[string]interface{}{
					"type":    "string",
					"enum":    []string{"CREATED", "UPDATED"},
					"default": "UPDATED",
				},
			},
			Required: []string{"project_id"},
		},
	}
}

// regenerateEmbeddingsTool returns the tool definition for regenerate_embeddings
func regenerateEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "regenerate_embeddings",
		Description: "Re-embed every project; failures are counted, never fatal",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getProjectFullTool returns the tool definition for get_project_full
func getProjectFullTool() mcp.Tool {
	props := map[string]interface{}{
		"project_id": map[string]interface{}{
			"type":        "integer",
			"description": "Project id",
		},
	}
	for k, v := range viewerProperties() {
		props[k] = v
	}

	return mcp.Tool{
		Name:        "get_project_full",
		Description: "Load a project with its applications, questions and answers, and feedback. Only the project's mentor or an admin may read it",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"project_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report embedding coverage, refresh pipeline state and cache statistics",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_id": map[string]interface{}{
					"type":        "integer",
					"description": "Optional project whose embedding state should be included",
				},
			},
		},
	}
}
