// Package searcher implements hybrid project search combining lexical
// matching and embedding similarity.
//
// The searcher provides three search modes:
//   - Hybrid: lexical + semantic rankings fused with RRF (default)
//   - Semantic: embedding distance only
//   - Lexical: SQL substring match only
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, queryCache, searcher.Config{})
//
//	page, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:    "graph databases",
//	    Viewer:   types.Viewer{UserID: 7, Role: types.RoleStudent},
//	    Page:     0,
//	    PageSize: 20,
//	})
//
// # Ranking
//
// The lexical ranking holds every visible project whose title, goal or key
// tasks contain the query (case-insensitive), newest first. The semantic
// ranking holds every visible project with an embedding, ordered by squared
// L2 distance to the query embedding. Both rankings are produced
// concurrently and fused with Reciprocal Rank Fusion:
//
//	RRF(d) = Σ 1/(k + rank(d))    k = 60 by default, rank is 1-indexed
//
// Equal scores are ordered by ascending project id. Structured filters are
// applied after fusion and before paging, so Total counts the filtered
// list.
//
// # Blank Queries
//
// A blank query skips ranking: projects are listed newest first with
// filtering, paging and counting done in SQL.
//
// # Degradation and Timeouts
//
// If the query cannot be embedded or the stored vectors cannot be read, the
// search continues with the lexical ranking alone and the returned page has
// Degraded set. If the whole search exceeds Config.Timeout the error wraps
// ErrSearchTimeout, which callers may retry.
//
// # Visibility
//
// Viewer decides which projects are eligible: admins see everything,
// mentors see published projects and their own, everyone else sees
// published projects only. Visibility filters both rankings before ranks
// are assigned.
package searcher
