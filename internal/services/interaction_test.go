package services

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/bookrec-backend/internal/data/graph"
	"github.com/yungbote/bookrec-backend/internal/data/repos"
	"github.com/yungbote/bookrec-backend/internal/data/repos/testutil"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore/kvstoretest"
)

type interactionFixture struct {
	svc       InteractionService
	bus       EventBus
	cache     CacheManager
	bl        BlacklistService
	graph     *fakeGraph
	exposures repos.ExposureRepo
	books     []*types.Book
	userID    int64
}

func newInteractionFixture(t *testing.T) *interactionFixture {
	t.Helper()
	return newInteractionFixtureWithBus(t, nil)
}

// newInteractionFixtureWithBus lets a test wrap the event bus the
// interaction service publishes through.
func newInteractionFixtureWithBus(t *testing.T, wrap func(EventBus) EventBus) *interactionFixture {
	t.Helper()
	kv, _ := kvstoretest.New(t)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	books := repos.NewBookRepo(db, log)
	feedbackRepo := repos.NewNegativeFeedbackRepo(db, log)
	exposures := repos.NewExposureRepo(db, log)
	g := newFakeGraph()
	cache := NewCacheManager(kv, repos.NewRecommendationCacheRepo(db, log), log, nil, CacheOptions{})
	bl := NewBlacklistService(kv, feedbackRepo, books, g, log)
	bus := NewEventBus(kv, log, nil, EventBusOptions{ClickThreshold: 3})
	fb := NewNegativeFeedbackService(feedbackRepo, exposures, books, bl, g, bus, log, nil, FeedbackOptions{ExposureThreshold: 3})
	events := bus
	if wrap != nil {
		events = wrap(bus)
	}

	svc, err := NewInteractionService(InteractionDeps{
		DB:           db,
		Books:        books,
		Interactions: repos.NewInteractionRepo(db, log),
		Searches:     repos.NewSearchLogRepo(db, log),
		Exposures:    exposures,
		Graph:        g,
		Impact:       NewImpactAnalyzer(g, log, ImpactOptions{}),
		Events:       events,
		Cache:        cache,
		Feedback:     fb,
		Log:          log,
	})
	if err != nil {
		t.Fatalf("NewInteractionService: %v", err)
	}

	cat := testutil.SeedCategory(t, ctx, db, "scifi")
	f := &interactionFixture{svc: svc, bus: bus, cache: cache, bl: bl, graph: g, exposures: exposures}
	f.books = []*types.Book{
		testutil.SeedBook(t, ctx, db, "Dune", "Herbert", cat, 4.5),
		testutil.SeedBook(t, ctx, db, "Foundation", "Asimov", cat, 4.4),
		testutil.SeedBook(t, ctx, db, "Hyperion", "Simmons", cat, 4.2),
	}
	f.userID = testutil.SeedUser(t, ctx, db, "reader").ID

	dune := f.books[0].ID
	g.neighbours[dune] = graph.Neighbours{
		SameCategory: []int64{f.books[1].ID, f.books[2].ID},
		Category:     "scifi",
		Author:       "Herbert",
	}
	g.local[dune] = []int64{f.books[1].ID}
	return f
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestRecordInteractionCollect(t *testing.T) {
	f := newInteractionFixture(t)
	ctx := context.Background()
	dune := f.books[0].ID
	f.cache.Set(ctx, f.userID, cachedList(dune))

	res, err := f.svc.RecordInteraction(ctx, f.userID, InteractionInput{BookID: dune, InteractionType: "Collect"})
	if err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	if res.Interaction.ID == 0 || res.Interaction.InteractionType != types.InteractionCollect {
		t.Fatalf("interaction not persisted: %+v", res.Interaction)
	}
	if len(res.Impact.AffectedBooks) != 3 || res.Impact.Priority != types.PriorityNormal || res.Impact.Scope != types.ScopePartial {
		t.Fatalf("impact = %+v", res.Impact)
	}
	if !res.Published {
		t.Fatalf("event should be published")
	}
	if len(f.graph.synced) != 1 || f.graph.synced[0] != types.InteractionCollect {
		t.Fatalf("graph sync = %v", f.graph.synced)
	}
	if _, ok := f.cache.Get(ctx, f.userID); ok {
		t.Fatalf("collect should hard-invalidate the cache")
	}

	ev, err := f.bus.Pop(ctx, 0)
	if err != nil || ev == nil {
		t.Fatalf("expected queued event, got %v err=%v", ev, err)
	}
	if ev.EventType != types.EventCollect || ev.Priority != types.PriorityNormal || ev.BookID == nil || *ev.BookID != dune {
		t.Fatalf("event = %+v", ev)
	}
	affected, _ := ev.ExtraData["affected_books"].([]any)
	if len(affected) != 3 || ev.ExtraData["recompute_scope"] != types.ScopePartial {
		t.Fatalf("extra_data = %+v", ev.ExtraData)
	}
}

// eagerBus runs onPublish right after every accepted publish, the way a
// subscribed worker can rewrite the cache before the publisher returns.
type eagerBus struct {
	EventBus
	onPublish func(userID int64)
}

func (b *eagerBus) Publish(ctx context.Context, userID int64, eventType string, bookID *int64, priority int, extra map[string]any) bool {
	ok := b.EventBus.Publish(ctx, userID, eventType, bookID, priority, extra)
	if ok && b.onPublish != nil {
		b.onPublish(userID)
	}
	return ok
}

func TestRecordInteractionKeepsConsumerRewrite(t *testing.T) {
	var eager *eagerBus
	f := newInteractionFixtureWithBus(t, func(inner EventBus) EventBus {
		eager = &eagerBus{EventBus: inner}
		return eager
	})
	ctx := context.Background()
	dune := f.books[0].ID
	f.cache.Set(ctx, f.userID, cachedList(dune))
	eager.onPublish = func(userID int64) {
		f.cache.Set(ctx, userID, cachedList(f.books[1].ID, f.books[2].ID))
	}

	if _, err := f.svc.RecordInteraction(ctx, f.userID, InteractionInput{BookID: dune, InteractionType: "Collect"}); err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	got, ok := f.cache.Get(ctx, f.userID)
	if !ok || len(got) != 2 || got[0].BookID != f.books[1].ID {
		t.Fatalf("recomputed list was discarded: ok=%v got=%+v", ok, got)
	}
}

func TestRecordInteractionLowRating(t *testing.T) {
	f := newInteractionFixture(t)
	ctx := context.Background()
	b := f.books[2].ID

	res, err := f.svc.RecordInteraction(ctx, f.userID, InteractionInput{BookID: b, InteractionType: types.InteractionRating, Rating: intPtr(1)})
	if err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	if res.Implicit == nil || res.Implicit.Type != types.FeedbackImplicitLowRating || !res.Implicit.Blacklisted {
		t.Fatalf("implicit = %+v", res.Implicit)
	}
	if !f.bl.IsBlacklisted(ctx, f.userID, b) {
		t.Fatalf("low rating should blacklist")
	}
	// Hyperion has no graph node: default impact.
	if res.Impact.Scope != types.ScopeFull || res.Impact.Priority != types.PriorityNormal {
		t.Fatalf("impact = %+v", res.Impact)
	}

	high, err := f.svc.RecordInteraction(ctx, f.userID, InteractionInput{BookID: f.books[0].ID, InteractionType: types.InteractionRating, Rating: intPtr(5)})
	if err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	if high.Implicit != nil || high.Impact.Priority != types.PriorityHigh {
		t.Fatalf("5-star rating = %+v", high)
	}
}

func TestRecordInteractionClicks(t *testing.T) {
	f := newInteractionFixture(t)
	ctx := context.Background()
	dune := f.books[0].ID
	f.cache.Set(ctx, f.userID, cachedList(dune))

	for i := 0; i < 2; i++ {
		res, err := f.svc.RecordInteraction(ctx, f.userID, InteractionInput{BookID: dune, InteractionType: types.InteractionClick})
		if err != nil {
			t.Fatalf("click %d: %v", i, err)
		}
		if !res.Incremental {
			t.Fatalf("a fresh cache and a small impact should allow an incremental update")
		}
	}
	if ev, _ := f.bus.Pop(ctx, 0); ev != nil {
		t.Fatalf("clicks below the threshold must not emit, got %+v", ev)
	}
	if _, ok := f.cache.Get(ctx, f.userID); !ok {
		t.Fatalf("clicks must not invalidate the cache")
	}

	res, err := f.svc.RecordInteraction(ctx, f.userID, InteractionInput{BookID: dune, InteractionType: types.InteractionClick, DurationSeconds: floatPtr(2)})
	if err != nil {
		t.Fatalf("third click: %v", err)
	}
	if res.Implicit == nil || res.Implicit.Type != types.FeedbackImplicitQuickReturn {
		t.Fatalf("quick return not detected: %+v", res.Implicit)
	}
	ev, err := f.bus.Pop(ctx, 0)
	if err != nil || ev == nil || ev.EventType != types.EventClick || ev.Priority != types.PriorityLow {
		t.Fatalf("threshold click event = %+v err=%v", ev, err)
	}

	exp, err := f.exposures.Get(dbctx.Context{Ctx: ctx}, f.userID, dune)
	if err != nil || exp == nil || exp.ClickCount != 3 {
		t.Fatalf("click count = %+v err=%v", exp, err)
	}
}

func TestRecordInteractionValidation(t *testing.T) {
	f := newInteractionFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   InteractionInput
		want error
	}{
		{"missing book", InteractionInput{InteractionType: types.InteractionClick}, apperr.ErrInvalidArgument},
		{"unknown type", InteractionInput{BookID: f.books[0].ID, InteractionType: "share"}, apperr.ErrInvalidArgument},
		{"rating without value", InteractionInput{BookID: f.books[0].ID, InteractionType: types.InteractionRating}, apperr.ErrInvalidArgument},
		{"rating out of range", InteractionInput{BookID: f.books[0].ID, InteractionType: types.InteractionRating, Rating: intPtr(6)}, apperr.ErrInvalidArgument},
		{"unknown book", InteractionInput{BookID: 9999, InteractionType: types.InteractionClick}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.RecordInteraction(ctx, f.userID, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRecordExposure(t *testing.T) {
	f := newInteractionFixture(t)
	ctx := context.Background()
	ids := []int64{f.books[0].ID, f.books[1].ID, f.books[1].ID}

	for i := 0; i < 2; i++ {
		out, err := f.svc.RecordExposure(ctx, f.userID, ids)
		if err != nil || len(out) != 0 {
			t.Fatalf("round %d: out=%v err=%v", i, out, err)
		}
	}
	out, err := f.svc.RecordExposure(ctx, f.userID, ids)
	if err != nil {
		t.Fatalf("RecordExposure: %v", err)
	}
	if len(out) != 2 || out[0].Type != types.FeedbackImplicitNoClick {
		t.Fatalf("third exposure should mark both books, got %+v", out)
	}
	// Strength 1 does not blacklist.
	if f.bl.IsBlacklisted(ctx, f.userID, f.books[0].ID) {
		t.Fatalf("implicit no-click must not blacklist")
	}
	if _, err := f.svc.RecordExposure(ctx, 0, ids); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("user 0 err = %v", err)
	}
}

func TestRecordSearch(t *testing.T) {
	f := newInteractionFixture(t)
	ctx := context.Background()
	row, err := f.svc.RecordSearch(ctx, f.userID, "  dune  ")
	if err != nil || row.ID == 0 || row.Query != "dune" {
		t.Fatalf("RecordSearch = %+v err=%v", row, err)
	}
	ev, err := f.bus.Pop(ctx, 0)
	if err != nil || ev == nil || ev.EventType != types.EventSearch || ev.ExtraData["query"] != "dune" {
		t.Fatalf("search event = %+v err=%v", ev, err)
	}
	if _, err := f.svc.RecordSearch(ctx, f.userID, " "); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("blank query err = %v", err)
	}
}
