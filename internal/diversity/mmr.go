package diversity

import (
	"math"

	types "github.com/yungbote/bookrec-backend/internal/domain"
)

// MMR greedily selects up to limit items maximising
//
//	lambda*score(i) - (1-lambda)*max(sim(i, s) for s in selected)
//
// starting from the already selected items. Ties keep input order.
func (r *Reranker) MMR(candidates, selected []types.Candidate, limit int) []types.Candidate {
	if len(candidates) == 0 || limit <= 0 {
		return []types.Candidate{}
	}
	lambda := r.opts.MMRLambda

	out := make([]types.Candidate, 0, limit)
	taken := map[int64]bool{}
	for _, s := range selected {
		if !taken[s.BookID] {
			out = append(out, s)
			taken[s.BookID] = true
		}
	}

	for len(out) < limit {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, c := range candidates {
			if taken[c.BookID] {
				continue
			}
			maxSim := 0.0
			for _, s := range out {
				if sim := Similarity(c, s); sim > maxSim {
					maxSim = sim
				}
			}
			if score := lambda*c.Score - (1-lambda)*maxSim; score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		out = append(out, candidates[bestIdx])
		taken[candidates[bestIdx].BookID] = true
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
