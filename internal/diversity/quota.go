package diversity

import (
	"math"

	types "github.com/yungbote/bookrec-backend/internal/domain"
)

type quotas struct {
	primary, secondary, explore, popular int
}

func (r *Reranker) quotas(limit int) quotas {
	q := quotas{
		primary:   max(1, int(math.Floor(float64(limit)*r.opts.Ratios.Primary))),
		secondary: max(1, int(math.Floor(float64(limit)*r.opts.Ratios.Secondary))),
		explore:   max(1, int(math.Floor(float64(limit)*r.opts.Ratios.Explore))),
	}
	q.popular = max(0, limit-q.primary-q.secondary-q.explore)
	return q
}

// Quota fills per-tier quotas from the candidates of each interest tier, in
// tier order, then back-fills from the rest by score. Categories outside the
// profile compete for the popular quota.
func (r *Reranker) Quota(candidates []types.Candidate, profile types.UserInterestProfile, limit int) []types.Candidate {
	if limit <= 0 || len(candidates) == 0 {
		return []types.Candidate{}
	}
	q := r.quotas(limit)

	var primary, secondary, explore, other []types.Candidate
	for _, c := range candidates {
		switch {
		case profile.Primary[c.Category]:
			primary = append(primary, c)
		case profile.Secondary[c.Category]:
			secondary = append(secondary, c)
		case profile.Explore[c.Category]:
			explore = append(explore, c)
		default:
			other = append(other, c)
		}
	}

	out := make([]types.Candidate, 0, limit)
	selected := map[int64]bool{}
	take := func(group []types.Candidate, n int) {
		for _, c := range byScore(group) {
			if n <= 0 {
				return
			}
			if selected[c.BookID] {
				continue
			}
			out = append(out, c)
			selected[c.BookID] = true
			n--
		}
	}
	take(primary, q.primary)
	take(secondary, q.secondary)
	take(explore, q.explore)
	take(other, q.popular)

	if len(out) < limit {
		take(candidates, limit-len(out))
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
