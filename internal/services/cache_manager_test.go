package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	"github.com/yungbote/bookrec-backend/internal/data/repos/testutil"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore/kvstoretest"
)

func newTestCacheManager(t *testing.T) (*cacheManager, *kvstore.Client, func(string) bool) {
	t.Helper()
	kv, mr := kvstoretest.New(t)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cm := NewCacheManager(kv, repos.NewRecommendationCacheRepo(db, log), log, observability.NewMetrics(), CacheOptions{Limit: 3}).(*cacheManager)
	return cm, kv, mr.Exists
}

func cachedList(ids ...int64) []types.CachedRecommendation {
	out := make([]types.CachedRecommendation, 0, len(ids))
	for i, id := range ids {
		out = append(out, types.CachedRecommendation{BookID: id, Score: float64(10 - i), Reason: "r", Tags: []string{}})
	}
	return out
}

func TestCacheManagerTiers(t *testing.T) {
	cm, kv, exists := newTestCacheManager(t)
	ctx := context.Background()

	if _, ok := cm.Get(ctx, 1); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if !cm.Set(ctx, 1, cachedList(10, 11)) {
		t.Fatalf("Set failed")
	}
	got, ok := cm.Get(ctx, 1)
	if !ok || len(got) != 2 || got[0].BookID != 10 {
		t.Fatalf("L1 hit: ok=%v got=%+v", ok, got)
	}

	// L2 repopulates L1.
	if err := kv.Del(ctx, kvstore.RecommendationKey(1)); err != nil {
		t.Fatalf("Del: %v", err)
	}
	got, ok = cm.Get(ctx, 1)
	if !ok || len(got) != 2 {
		t.Fatalf("L2 hit: ok=%v got=%+v", ok, got)
	}
	if !exists(kvstore.RecommendationKey(1)) {
		t.Fatalf("expected L1 repopulated from L2")
	}

	// Soft invalidation leaves L1 serving.
	if !cm.MarkStale(ctx, 1) {
		t.Fatalf("MarkStale failed")
	}
	if _, ok := cm.Get(ctx, 1); !ok {
		t.Fatalf("L1 should still serve after MarkStale")
	}
	_ = kv.Del(ctx, kvstore.RecommendationKey(1))
	if _, ok := cm.Get(ctx, 1); ok {
		t.Fatalf("stale L2 must be a miss")
	}
	if _, ok := cm.Age(ctx, 1); ok {
		t.Fatalf("Age of a stale entry should not be reported")
	}

	// A fresh Set clears the stale flag.
	cm.Set(ctx, 1, cachedList(12))
	if age, ok := cm.Age(ctx, 1); !ok || age > time.Minute {
		t.Fatalf("Age after Set: age=%v ok=%v", age, ok)
	}
	if !cm.Invalidate(ctx, 1) {
		t.Fatalf("Invalidate failed")
	}
	if exists(kvstore.RecommendationKey(1)) {
		t.Fatalf("Invalidate must delete L1")
	}
	if _, ok := cm.Get(ctx, 1); ok {
		t.Fatalf("expected miss after Invalidate")
	}
}

func TestCacheManagerExpiryAndMalformed(t *testing.T) {
	cm, kv, _ := newTestCacheManager(t)
	ctx := context.Background()

	cm.Set(ctx, 2, cachedList(20))
	_ = kv.Del(ctx, kvstore.RecommendationKey(2))
	cm.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }
	if _, ok := cm.Get(ctx, 2); ok {
		t.Fatalf("L2 older than its TTL must be a miss")
	}
	cm.now = func() time.Time { return time.Now().UTC() }

	// Malformed L1 falls through to L2.
	if err := kv.Set(ctx, kvstore.RecommendationKey(2), "{not json", time.Minute); err != nil {
		t.Fatalf("Set raw: %v", err)
	}
	got, ok := cm.Get(ctx, 2)
	if !ok || len(got) != 1 || got[0].BookID != 20 {
		t.Fatalf("expected L2 fallback, ok=%v got=%+v", ok, got)
	}

	// Empty lists are misses.
	cm.Set(ctx, 3, nil)
	if _, ok := cm.Get(ctx, 3); ok {
		t.Fatalf("empty cached list should be a miss")
	}
}

func TestCacheManagerStoreDown(t *testing.T) {
	kv, mr := kvstoretest.New(t)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cm := NewCacheManager(kv, repos.NewRecommendationCacheRepo(db, log), log, nil, CacheOptions{})
	ctx := context.Background()

	mr.Close()
	if !cm.Set(ctx, 4, cachedList(40)) {
		t.Fatalf("Set should succeed when only L1 is down")
	}
	got, ok := cm.Get(ctx, 4)
	if !ok || got[0].BookID != 40 {
		t.Fatalf("expected L2 hit with L1 down, ok=%v got=%+v", ok, got)
	}
}

func TestCacheManagerMerge(t *testing.T) {
	cm, _, _ := newTestCacheManager(t)
	ctx := context.Background()

	cm.Set(ctx, 5, []types.CachedRecommendation{
		{BookID: 1, Score: 0.9},
		{BookID: 2, Score: 0.8},
		{BookID: 3, Score: 0.7},
	})
	fresh := []types.CachedRecommendation{
		{BookID: 2, Score: 0.95},
		{BookID: 9, Score: 0.99},
		{BookID: 3, Score: 0.1},
	}
	merged := cm.Merge(ctx, 5, fresh, []int64{2, 3})
	want := []int64{2, 1}
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged entries, got %+v", merged)
	}
	for i, id := range want {
		if merged[i].BookID != id {
			t.Fatalf("merged[%d] = %d, want %d (%+v)", i, merged[i].BookID, id, merged)
		}
	}
	if merged[2].BookID != 3 || merged[2].Score != 0.1 {
		t.Fatalf("affected item should take the fresh score: %+v", merged[2])
	}

	if got := cm.Merge(ctx, 5, cachedList(1, 2, 3, 4), nil); len(got) != 3 {
		t.Fatalf("Merge without affected ids should truncate fresh list, got %d", len(got))
	}
}

func TestCacheManagerMergeAfterInvalidate(t *testing.T) {
	cm, _, _ := newTestCacheManager(t)
	ctx := context.Background()

	cm.Set(ctx, 5, cachedList(1, 2, 3))
	if !cm.Invalidate(ctx, 5) {
		t.Fatalf("Invalidate failed")
	}
	merged := cm.Merge(ctx, 5, cachedList(7, 8, 9, 2), []int64{2})
	if len(merged) != 3 {
		t.Fatalf("expected the fresh list truncated to 3, got %+v", merged)
	}
	for i, id := range []int64{7, 8, 9} {
		if merged[i].BookID != id {
			t.Fatalf("merged[%d] = %d, want %d (%+v)", i, merged[i].BookID, id, merged)
		}
	}
}

func TestCacheManagerWarm(t *testing.T) {
	cm, _, _ := newTestCacheManager(t)
	ctx := context.Background()

	cm.Set(ctx, 1, cachedList(1))
	calls := map[int64]int{}
	compute := func(_ context.Context, userID int64) ([]types.CachedRecommendation, error) {
		calls[userID]++
		switch userID {
		case 3:
			return nil, errors.New("boom")
		case 4:
			return nil, nil
		}
		return cachedList(userID * 10), nil
	}
	if n := cm.Warm(ctx, []int64{1, 2, 3, 4}, compute); n != 1 {
		t.Fatalf("Warm = %d, want 1", n)
	}
	if calls[1] != 0 {
		t.Fatalf("user with an L1 entry should be skipped")
	}
	if got, ok := cm.Get(ctx, 2); !ok || got[0].BookID != 20 {
		t.Fatalf("warmed entry missing: ok=%v got=%+v", ok, got)
	}
}
