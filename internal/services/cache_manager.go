package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

const (
	tierL1 = "l1"
	tierL2 = "l2"
)

// ComputeFunc produces a fresh recommendation list for one user.
type ComputeFunc func(ctx context.Context, userID int64) ([]types.CachedRecommendation, error)

// CacheManager is the two-tier view over a user's recommendation list. L1
// lives in the key-value store with a short TTL; L2 is a relational row with
// an explicit stale flag and a longer TTL. No method returns an error:
// backing-store failures read as misses and writes report false.
type CacheManager interface {
	Get(ctx context.Context, userID int64) ([]types.CachedRecommendation, bool)
	Set(ctx context.Context, userID int64, recs []types.CachedRecommendation) bool
	// Invalidate deletes L1 and marks L2 stale.
	Invalidate(ctx context.Context, userID int64) bool
	// MarkStale flags L2 only; a live L1 entry keeps serving until its TTL.
	MarkStale(ctx context.Context, userID int64) bool
	// Merge takes fresh entries for affected books and keeps the cached
	// entries for everything else.
	Merge(ctx context.Context, userID int64, fresh []types.CachedRecommendation, affected []int64) []types.CachedRecommendation
	// Warm computes and stores lists for users without an L1 entry and
	// returns how many were written.
	Warm(ctx context.Context, userIDs []int64, compute ComputeFunc) int
	// Age is the age of a servable L2 entry.
	Age(ctx context.Context, userID int64) (time.Duration, bool)
}

type CacheOptions struct {
	L1TTL time.Duration
	L2TTL time.Duration
	Limit int
}

type cacheManager struct {
	kv      kvstore.Store
	repo    repos.RecommendationCacheRepo
	log     *logger.Logger
	metrics *observability.Metrics
	opts    CacheOptions
	now     func() time.Time
}

func NewCacheManager(
	kv kvstore.Store,
	repo repos.RecommendationCacheRepo,
	baseLog *logger.Logger,
	metrics *observability.Metrics,
	opts CacheOptions,
) CacheManager {
	if opts.L1TTL <= 0 {
		opts.L1TTL = 300 * time.Second
	}
	if opts.L2TTL <= 0 {
		opts.L2TTL = 86400 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	return &cacheManager{
		kv:      kv,
		repo:    repo,
		log:     baseLog.With("service", "CacheManager"),
		metrics: metrics,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *cacheManager) getL1(ctx context.Context, userID int64) ([]types.CachedRecommendation, bool) {
	var recs []types.CachedRecommendation
	err := m.kv.GetJSON(ctx, kvstore.RecommendationKey(userID), &recs)
	switch {
	case errors.Is(err, kvstore.ErrMiss):
		m.metrics.ObserveCacheLookup(tierL1, "miss")
		return nil, false
	case err != nil:
		m.log.Warn("L1 cache read failed", "user_id", userID, "error", err)
		m.metrics.ObserveCacheLookup(tierL1, "error")
		return nil, false
	case len(recs) == 0:
		m.metrics.ObserveCacheLookup(tierL1, "miss")
		return nil, false
	}
	m.log.Debug("L1 cache hit", "user_id", userID)
	m.metrics.ObserveCacheLookup(tierL1, "hit")
	return recs, true
}

// loadL2 returns the row when it is neither stale nor past the L2 TTL.
func (m *cacheManager) loadL2(ctx context.Context, userID int64) (*types.RecommendationCacheEntry, bool) {
	row, err := m.repo.Get(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		m.log.Warn("L2 cache read failed", "user_id", userID, "error", err)
		m.metrics.ObserveCacheLookup(tierL2, "error")
		return nil, false
	}
	if row == nil {
		m.metrics.ObserveCacheLookup(tierL2, "miss")
		return nil, false
	}
	if row.IsStale {
		m.log.Debug("L2 cache is stale", "user_id", userID)
		m.metrics.ObserveCacheLookup(tierL2, "stale")
		return nil, false
	}
	if row.Age(m.now()) > m.opts.L2TTL {
		m.log.Debug("L2 cache expired", "user_id", userID)
		m.metrics.ObserveCacheLookup(tierL2, "expired")
		return nil, false
	}
	return row, true
}

func (m *cacheManager) getL2(ctx context.Context, userID int64) ([]types.CachedRecommendation, bool) {
	row, ok := m.loadL2(ctx, userID)
	if !ok {
		return nil, false
	}
	var recs []types.CachedRecommendation
	if err := json.Unmarshal(row.Recommendations, &recs); err != nil {
		m.log.Warn("L2 cache payload malformed", "user_id", userID, "error", err)
		m.metrics.ObserveCacheLookup(tierL2, "error")
		return nil, false
	}
	if len(recs) == 0 {
		m.metrics.ObserveCacheLookup(tierL2, "miss")
		return nil, false
	}
	m.log.Debug("L2 cache hit", "user_id", userID)
	m.metrics.ObserveCacheLookup(tierL2, "hit")
	return recs, true
}

func (m *cacheManager) setL1(ctx context.Context, userID int64, recs []types.CachedRecommendation) bool {
	err := m.kv.SetJSON(ctx, kvstore.RecommendationKey(userID), recs, m.opts.L1TTL)
	m.metrics.ObserveCacheWrite(tierL1, "set", err == nil)
	if err != nil {
		m.log.Warn("L1 cache write failed", "user_id", userID, "error", err)
		return false
	}
	return true
}

func (m *cacheManager) setL2(ctx context.Context, userID int64, recs []types.CachedRecommendation) bool {
	err := m.repo.Upsert(dbctx.Context{Ctx: ctx}, userID, recs)
	m.metrics.ObserveCacheWrite(tierL2, "set", err == nil)
	if err != nil {
		m.log.Warn("L2 cache write failed", "user_id", userID, "error", err)
		return false
	}
	return true
}

func (m *cacheManager) Get(ctx context.Context, userID int64) ([]types.CachedRecommendation, bool) {
	if recs, ok := m.getL1(ctx, userID); ok {
		return recs, true
	}
	recs, ok := m.getL2(ctx, userID)
	if !ok {
		return nil, false
	}
	m.setL1(ctx, userID, recs)
	return recs, true
}

func (m *cacheManager) Set(ctx context.Context, userID int64, recs []types.CachedRecommendation) bool {
	if recs == nil {
		recs = []types.CachedRecommendation{}
	}
	l1 := m.setL1(ctx, userID, recs)
	l2 := m.setL2(ctx, userID, recs)
	return l1 || l2
}

func (m *cacheManager) Invalidate(ctx context.Context, userID int64) bool {
	err := m.kv.Del(ctx, kvstore.RecommendationKey(userID))
	m.metrics.ObserveCacheWrite(tierL1, "invalidate", err == nil)
	if err != nil {
		m.log.Warn("L1 cache invalidate failed", "user_id", userID, "error", err)
	}
	stale := m.MarkStale(ctx, userID)
	m.log.Debug("Cache invalidated", "user_id", userID, "l1", err == nil, "l2_stale", stale)
	return err == nil || stale
}

func (m *cacheManager) MarkStale(ctx context.Context, userID int64) bool {
	err := m.repo.MarkStale(dbctx.Context{Ctx: ctx}, userID)
	m.metrics.ObserveCacheWrite(tierL2, "mark_stale", err == nil)
	if err != nil {
		m.log.Warn("L2 cache mark stale failed", "user_id", userID, "error", err)
		return false
	}
	return true
}

func (m *cacheManager) Merge(ctx context.Context, userID int64, fresh []types.CachedRecommendation, affected []int64) []types.CachedRecommendation {
	if len(affected) == 0 {
		return truncateCached(fresh, m.opts.Limit)
	}
	old, ok := m.Get(ctx, userID)
	if !ok || len(old) == 0 {
		// Nothing to keep: the fresh list is the whole answer.
		return truncateCached(fresh, m.opts.Limit)
	}

	isAffected := make(map[int64]bool, len(affected))
	for _, id := range affected {
		isAffected[id] = true
	}
	merged := make([]types.CachedRecommendation, 0, len(fresh)+len(old))
	seen := map[int64]bool{}
	for _, r := range fresh {
		if isAffected[r.BookID] && !seen[r.BookID] {
			merged = append(merged, r)
			seen[r.BookID] = true
		}
	}
	for _, r := range old {
		if !isAffected[r.BookID] && !seen[r.BookID] {
			merged = append(merged, r)
			seen[r.BookID] = true
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return truncateCached(merged, m.opts.Limit)
}

func (m *cacheManager) Warm(ctx context.Context, userIDs []int64, compute ComputeFunc) int {
	if compute == nil {
		return 0
	}
	warmed := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		if _, ok := m.getL1(ctx, userID); ok {
			continue
		}
		recs, err := compute(ctx, userID)
		if err != nil {
			m.log.Warn("Cache warm compute failed", "user_id", userID, "error", err)
			continue
		}
		if len(recs) == 0 {
			continue
		}
		if m.Set(ctx, userID, recs) {
			warmed++
		}
	}
	return warmed
}

func (m *cacheManager) Age(ctx context.Context, userID int64) (time.Duration, bool) {
	row, ok := m.loadL2(ctx, userID)
	if !ok {
		return 0, false
	}
	return row.Age(m.now()), true
}

func truncateCached(in []types.CachedRecommendation, limit int) []types.CachedRecommendation {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
