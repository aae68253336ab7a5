package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/yungbote/bookrec-backend/internal/data/graph"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

// ImpactAnalyzer decides which cached items a behaviour event touches and
// whether an incremental update is enough.
type ImpactAnalyzer interface {
	Analyze(ctx context.Context, userID, bookID int64, action string) types.Impact
	ShouldUseIncremental(action string, affectedCount int, cacheAge time.Duration) bool
	// IncrementalUpdate blends old*0.7+new*0.3 for affected items that have a
	// new score, re-sorts and truncates.
	IncrementalUpdate(old []types.CachedRecommendation, affected []int64, newScores map[int64]float64, limit int) []types.CachedRecommendation
}

type ImpactOptions struct {
	Neighbours     graph.NeighbourLimits
	LocalLimit     int
	MaxCacheAge    time.Duration
	MaxAffected    int
	OldScoreWeight float64
}

type impactAnalyzer struct {
	graph BookGraph
	log   *logger.Logger
	opts  ImpactOptions
}

func NewImpactAnalyzer(g BookGraph, baseLog *logger.Logger, opts ImpactOptions) ImpactAnalyzer {
	if opts.Neighbours == (graph.NeighbourLimits{}) {
		opts.Neighbours = graph.DefaultNeighbourLimits
	}
	if opts.LocalLimit <= 0 {
		opts.LocalLimit = 10
	}
	if opts.MaxCacheAge <= 0 {
		opts.MaxCacheAge = time.Hour
	}
	if opts.MaxAffected <= 0 {
		opts.MaxAffected = 30
	}
	if opts.OldScoreWeight <= 0 || opts.OldScoreWeight > 1 {
		opts.OldScoreWeight = 0.7
	}
	return &impactAnalyzer{graph: g, log: baseLog.With("service", "ImpactAnalyzer"), opts: opts}
}

func isExtendedAction(action string) bool {
	switch action {
	case types.EventRating, types.EventCollect, types.EventNegativeFeedback:
		return true
	}
	return false
}

func defaultImpact(bookID int64, action string) types.Impact {
	imp := types.Impact{
		AffectedBooks:      []int64{bookID},
		AffectedCategories: []string{},
		AffectedAuthors:    []string{},
		Scope:              types.ScopePartial,
		Priority:           types.PriorityLow,
	}
	if action == types.EventRating || action == types.EventCollect {
		imp.Scope = types.ScopeFull
		imp.Priority = types.PriorityNormal
	}
	return imp
}

func (a *impactAnalyzer) Analyze(ctx context.Context, userID, bookID int64, action string) types.Impact {
	if a.graph == nil || !a.graph.Available() {
		return defaultImpact(bookID, action)
	}
	var (
		imp types.Impact
		err error
	)
	if isExtendedAction(action) {
		imp, err = a.extended(ctx, bookID, action)
	} else {
		imp, err = a.local(ctx, bookID)
	}
	if err != nil {
		if !errors.Is(err, graph.ErrBookNotFound) {
			a.log.Warn("Impact analysis failed", "user_id", userID, "book_id", bookID, "action", action, "error", err)
		}
		return defaultImpact(bookID, action)
	}
	return imp
}

func (a *impactAnalyzer) extended(ctx context.Context, bookID int64, action string) (types.Impact, error) {
	n, err := a.graph.ExtendedNeighbours(ctx, bookID, a.opts.Neighbours)
	if err != nil {
		return types.Impact{}, err
	}
	affected := appendUnique([]int64{bookID}, capIDs(n.SameCategory, a.opts.Neighbours.SameCategory)...)
	affected = appendUnique(affected, capIDs(n.SameAuthor, a.opts.Neighbours.SameAuthor)...)
	affected = appendUnique(affected, capIDs(n.Collaborative, a.opts.Neighbours.Collaborative)...)

	imp := types.Impact{
		AffectedBooks:      affected,
		AffectedCategories: []string{},
		AffectedAuthors:    []string{},
		Scope:              types.ScopePartial,
		Priority:           types.PriorityNormal,
	}
	if n.Category != "" {
		imp.AffectedCategories = append(imp.AffectedCategories, n.Category)
	}
	if n.Author != "" {
		imp.AffectedAuthors = append(imp.AffectedAuthors, n.Author)
	}
	if action == types.EventRating {
		imp.Priority = types.PriorityHigh
	}
	return imp, nil
}

func (a *impactAnalyzer) local(ctx context.Context, bookID int64) (types.Impact, error) {
	related, err := a.graph.LocalNeighbours(ctx, bookID, a.opts.LocalLimit)
	if err != nil {
		return types.Impact{}, err
	}
	return types.Impact{
		AffectedBooks:      appendUnique([]int64{bookID}, capIDs(related, a.opts.LocalLimit)...),
		AffectedCategories: []string{},
		AffectedAuthors:    []string{},
		Scope:              types.ScopePartial,
		Priority:           types.PriorityLow,
	}, nil
}

func capIDs(ids []int64, n int) []int64 {
	if n >= 0 && len(ids) > n {
		return ids[:n]
	}
	return ids
}

func appendUnique(dst []int64, ids ...int64) []int64 {
	seen := make(map[int64]bool, len(dst)+len(ids))
	for _, id := range dst {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			dst = append(dst, id)
		}
	}
	return dst
}

func (a *impactAnalyzer) ShouldUseIncremental(action string, affectedCount int, cacheAge time.Duration) bool {
	if cacheAge > a.opts.MaxCacheAge {
		return false
	}
	if affectedCount > a.opts.MaxAffected {
		return false
	}
	// Negative feedback always recomputes so the blacklist takes effect.
	return action != types.EventNegativeFeedback
}

func (a *impactAnalyzer) IncrementalUpdate(old []types.CachedRecommendation, affected []int64, newScores map[int64]float64, limit int) []types.CachedRecommendation {
	isAffected := make(map[int64]bool, len(affected))
	for _, id := range affected {
		isAffected[id] = true
	}
	w := a.opts.OldScoreWeight
	out := make([]types.CachedRecommendation, len(old))
	copy(out, old)
	for i := range out {
		if !isAffected[out[i].BookID] {
			continue
		}
		if s, ok := newScores[out[i].BookID]; ok {
			out[i].Score = out[i].Score*w + s*(1-w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return truncateCached(out, limit)
}
