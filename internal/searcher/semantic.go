package searcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/dshills/projsearch/internal/vectormath"
	"github.com/dshills/projsearch/pkg/types"
)

// cancelCheckInterval is how many rows are scored between context checks
const cancelCheckInterval = 1024

type scoredProject struct {
	id       int64
	distance float64
}

// semanticRanking orders every embedded project the viewer may see by
// squared L2 distance to the query vector, closest first. Visibility is
// applied before ranks are assigned so hidden projects never take a rank.
func (s *Searcher) semanticRanking(ctx context.Context, query string, viewer types.Viewer) ([]int64, error) {
	vec, err := s.queries.Get(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.storage.ListEmbedded(ctx)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredProject, 0, len(rows))
	mismatched := 0
	for i, row := range rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !viewer.CanSee(row.Status, row.MentorID) {
			continue
		}
		// Rows written by a provider with another dimension cannot be compared
		if vectormath.CheckLengths(vec, row.Embedding) != nil {
			mismatched++
			continue
		}
		scored = append(scored, scoredProject{
			id:       row.ID,
			distance: vectormath.SquaredDistance(vec, row.Embedding),
		})
	}
	if mismatched > 0 {
		s.log.Warn().
			Int("rows", mismatched).
			Int("dimension", len(vec)).
			Msg("skipped embeddings with mismatched dimension; run regenerate")
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].distance != scored[j].distance {
			return scored[i].distance < scored[j].distance
		}
		return scored[i].id < scored[j].id
	})

	ids := make([]int64, len(scored))
	for i, sp := range scored {
		ids[i] = sp.id
	}
	return ids, nil
}
