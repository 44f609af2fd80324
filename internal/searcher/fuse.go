package searcher

import "sort"

// RankedCandidate is a project's 1-indexed position in one ranked list
type RankedCandidate struct {
	ProjectID int64
	Rank      int
}

// FusedScore is a project's combined Reciprocal Rank Fusion score
type FusedScore struct {
	ProjectID int64
	Score     float64
}

// Ranked assigns 1-indexed ranks to ids in list order
func Ranked(ids []int64) []RankedCandidate {
	out := make([]RankedCandidate, len(ids))
	for i, id := range ids {
		out[i] = RankedCandidate{ProjectID: id, Rank: i + 1}
	}
	return out
}

// FuseRRF merges ranked lists with Reciprocal Rank Fusion:
// RRF(d) = Σ 1/(k + rank(d)). A project absent from a list contributes
// nothing for that list. Results are ordered by score descending, then by
// project id ascending so equal scores always come back in the same order.
func FuseRRF(k int, lists ...[]RankedCandidate) []FusedScore {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[int64]float64)
	for _, list := range lists {
		for _, c := range list {
			scores[c.ProjectID] += 1.0 / float64(k+c.Rank)
		}
	}

	fused := make([]FusedScore, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, FusedScore{ProjectID: id, Score: score})
	}
	sortFused(fused)
	return fused
}

func sortFused(fused []FusedScore) {
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ProjectID < fused[j].ProjectID
	})
}
