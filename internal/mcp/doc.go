// Package mcp exposes project search over the Model Context Protocol.
//
// The server speaks MCP on stdio and registers five tools:
//
//   - search_projects: hybrid, semantic or lexical search with filters and
//     paging. A blank query lists visible projects newest first.
//   - notify_project_mutation: queue an embedding refresh after a project
//     create or update has committed.
//   - regenerate_embeddings: re-embed every project and report counts.
//   - get_project_full: a project with applications, questions and
//     answers, and feedback.
//   - get_status: embedding coverage, refresh states, queue depth, cache
//     and worker statistics.
//
// # Viewers
//
// search_projects and get_project_full take viewer_id and viewer_role.
// Students and teachers see published projects only; mentors additionally
// see their own drafts and archived projects; admins see everything.
//
// # Example
//
// Request:
//
//	{
//	  "name": "search_projects",
//	  "arguments": {
//	    "query": "graph algorithms",
//	    "page": 0,
//	    "page_size": 10,
//	    "filters": {"difficulty": "MEDIUM", "thesis_ok": true},
//	    "viewer_id": 42,
//	    "viewer_role": "STUDENT"
//	  }
//	}
//
// Response:
//
//	{
//	  "items": [
//	    {"id": 7, "mentor_id": 3, "title": "Graph Engine", "difficulty": "MEDIUM", ...}
//	  ],
//	  "total": 1,
//	  "page": 0,
//	  "page_size": 10
//	}
//
// "degraded": true is added when the semantic half of a hybrid search
// failed and the page was ranked lexically.
//
// # Errors
//
// Tool errors carry a JSON-RPC code:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  project not found or not visible
//	-32002  regeneration already running
//	-32003  timed out; the data field has "retryable": true
package mcp
