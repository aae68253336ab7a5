package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	"github.com/yungbote/bookrec-backend/internal/data/repos/testutil"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore/kvstoretest"
)

type feedbackFixture struct {
	db       *gorm.DB
	svc      *negativeFeedbackService
	bl       BlacklistService
	bus      EventBus
	graph    *fakeGraph
	feedback repos.NegativeFeedbackRepo
	books    []*types.Book
	userID   int64
}

func newFeedbackFixture(t *testing.T) *feedbackFixture {
	t.Helper()
	kv, _ := kvstoretest.New(t)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	feedback := repos.NewNegativeFeedbackRepo(db, log)
	books := repos.NewBookRepo(db, log)
	g := newFakeGraph()
	bl := NewBlacklistService(kv, feedback, books, g, log)
	bus := NewEventBus(kv, log, nil, EventBusOptions{})
	svc := NewNegativeFeedbackService(feedback, repos.NewExposureRepo(db, log), books, bl, g, bus, log, nil,
		FeedbackOptions{ExposureThreshold: 3, SoftPenaltyFactor: 0.1}).(*negativeFeedbackService)

	cat := testutil.SeedCategory(t, ctx, db, "mystery")
	f := &feedbackFixture{db: db, svc: svc, bl: bl, bus: bus, graph: g, feedback: feedback}
	f.books = []*types.Book{
		testutil.SeedBook(t, ctx, db, "Gone Girl", "Flynn", cat, 4),
		testutil.SeedBook(t, ctx, db, "Rebecca", "du Maurier", cat, 4.3),
		testutil.SeedBook(t, ctx, db, "Sharp Objects", "Flynn", cat, 3.9),
	}
	f.userID = testutil.SeedUser(t, ctx, db, "reader").ID
	return f
}

func TestNegativeFeedbackSubmit(t *testing.T) {
	f := newFeedbackFixture(t)
	ctx := context.Background()
	b := f.books[0]

	row, err := f.svc.Submit(ctx, f.userID, b.ID, types.FeedbackWrongAuthor, "not my style", 9)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if row.Strength != 3 {
		t.Fatalf("strength should clamp to 3, got %d", row.Strength)
	}
	if !f.bl.IsBlacklisted(ctx, f.userID, b.ID) {
		t.Fatalf("submitted book should be blacklisted")
	}
	if authors := f.bl.DislikedAuthors(ctx, f.userID); len(authors) != 1 || authors[0] != "Flynn" {
		t.Fatalf("DislikedAuthors = %v", authors)
	}
	if f.graph.dislikes[[2]int64{f.userID, b.ID}] != types.FeedbackWrongAuthor {
		t.Fatalf("dislike not mirrored to graph: %v", f.graph.dislikes)
	}
	ev, err := f.bus.Pop(ctx, 0)
	if err != nil || ev == nil || ev.EventType != types.EventNegativeFeedback || ev.Priority != types.PriorityHigh {
		t.Fatalf("expected high-priority negative_feedback event, got %+v err=%v", ev, err)
	}

	cases := []struct {
		name   string
		bookID int64
		kind   string
		want   error
	}{
		{name: "bad type", bookID: b.ID, kind: "meh", want: apperr.ErrInvalidArgument},
		{name: "missing book", bookID: 99999, kind: types.FeedbackNotInterested, want: apperr.ErrNotFound},
		{name: "zero book", bookID: 0, kind: types.FeedbackNotInterested, want: apperr.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Submit(ctx, f.userID, tc.bookID, tc.kind, "", 1); !errors.Is(err, tc.want) {
				t.Fatalf("Submit err = %v, want %v", err, tc.want)
			}
		})
	}

	changed, err := f.svc.Remove(ctx, f.userID, b.ID)
	if err != nil || !changed {
		t.Fatalf("Remove: changed=%v err=%v", changed, err)
	}
	if f.bl.IsBlacklisted(ctx, f.userID, b.ID) {
		t.Fatalf("Remove should clear the blacklist entry")
	}
	if _, ok := f.graph.dislikes[[2]int64{f.userID, b.ID}]; ok {
		t.Fatalf("Remove should clear the graph dislike")
	}
}

func TestNegativeFeedbackDetect(t *testing.T) {
	f := newFeedbackFixture(t)
	ctx := context.Background()
	b0, b1, b2 := f.books[0].ID, f.books[1].ID, f.books[2].ID

	for i := 0; i < 2; i++ {
		if res, err := f.svc.Detect(ctx, f.userID, b0, BehaviorExposure, DetectContext{}); err != nil || res != nil {
			t.Fatalf("exposure %d below threshold: res=%+v err=%v", i, res, err)
		}
	}
	res, err := f.svc.Detect(ctx, f.userID, b0, BehaviorExposure, DetectContext{})
	if err != nil || res == nil || res.Type != types.FeedbackImplicitNoClick || res.Blacklisted {
		t.Fatalf("exposure at threshold: res=%+v err=%v", res, err)
	}

	if res, _ := f.svc.Detect(ctx, f.userID, b1, BehaviorQuickReturn, DetectContext{DurationSeconds: 12}); res != nil {
		t.Fatalf("long visit should not be negative: %+v", res)
	}
	res, err = f.svc.Detect(ctx, f.userID, b1, BehaviorQuickReturn, DetectContext{DurationSeconds: 2})
	if err != nil || res == nil || res.Type != types.FeedbackImplicitQuickReturn || res.Strength != 1 {
		t.Fatalf("quick return: res=%+v err=%v", res, err)
	}

	if res, _ := f.svc.Detect(ctx, f.userID, b2, BehaviorLowRating, DetectContext{Rating: 4}); res != nil {
		t.Fatalf("good rating should not be negative: %+v", res)
	}
	res, err = f.svc.Detect(ctx, f.userID, b2, BehaviorLowRating, DetectContext{Rating: 1})
	if err != nil || res == nil || !res.Blacklisted || res.Strength != 2 {
		t.Fatalf("low rating: res=%+v err=%v", res, err)
	}
	if !f.bl.IsBlacklisted(ctx, f.userID, b2) {
		t.Fatalf("strength 2 should blacklist immediately")
	}

	// An active record is never overwritten by a synthesized one.
	res, err = f.svc.Detect(ctx, f.userID, b2, BehaviorLowRating, DetectContext{Rating: 2})
	if err != nil || res == nil || !res.Existing {
		t.Fatalf("expected existing record, res=%+v err=%v", res, err)
	}

	if _, err := f.svc.Detect(ctx, f.userID, b2, "stare", DetectContext{}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("unknown behavior err = %v", err)
	}
}

func TestNegativeFeedbackSoftPenalty(t *testing.T) {
	f := newFeedbackFixture(t)
	ctx := context.Background()
	b0, b1, b2 := f.books[0].ID, f.books[1].ID, f.books[2].ID

	// b0: 2 exposures, no click. b1: 3 exposures (threshold). b2: clicked.
	for i := 0; i < 2; i++ {
		f.svc.Detect(ctx, f.userID, b0, BehaviorExposure, DetectContext{})
	}
	for i := 0; i < 3; i++ {
		f.svc.Detect(ctx, f.userID, b1, BehaviorExposure, DetectContext{})
	}
	f.svc.Detect(ctx, f.userID, b2, BehaviorExposure, DetectContext{})
	f.svc.Detect(ctx, f.userID, b2, BehaviorQuickReturn, DetectContext{DurationSeconds: 30})
	if _, err := repos.NewExposureRepo(f.db, testutil.Logger(t)).IncrementClick(dbctx.Context{Ctx: ctx}, f.userID, b2); err != nil {
		t.Fatalf("IncrementClick: %v", err)
	}

	out := f.svc.ApplySoftPenalty(ctx, f.userID, []types.Candidate{
		{BookID: b0, Score: 1},
		{BookID: b1, Score: 1},
		{BookID: b2, Score: 1},
		{BookID: 777, Score: 1},
	})
	if len(out) != 3 {
		t.Fatalf("expected threshold candidate dropped, got %+v", out)
	}
	if math.Abs(out[0].Score-0.8) > 1e-9 || out[1].Score != 1 || out[2].Score != 1 {
		t.Fatalf("unexpected scores %+v", out)
	}
	if !f.bl.IsBlacklisted(ctx, f.userID, b1) {
		t.Fatalf("dropped candidate should be blacklisted")
	}
	if got := f.svc.PenaltyScore(ctx, f.userID, b0); math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("PenaltyScore = %v", got)
	}
	if got := f.svc.PenaltyScore(ctx, f.userID, 777); got != 1 {
		t.Fatalf("PenaltyScore without exposure = %v", got)
	}
}

func TestNegativeFeedbackDecay(t *testing.T) {
	f := newFeedbackFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	b0, b1, b2 := f.books[0].ID, f.books[1].ID, f.books[2].ID

	// 1·e^(-0.1·0) = 1 keeps; 1·e^(-0.1·10) ≈ 0.37 releases; 1·e^(-0.1·30) ≈ 0.05 deactivates.
	testutil.SeedFeedback(t, ctx, f.db, f.userID, b0, types.FeedbackNotInterested, 1, now)
	testutil.SeedFeedback(t, ctx, f.db, f.userID, b1, types.FeedbackNotInterested, 1, now.AddDate(0, 0, -300))
	testutil.SeedFeedback(t, ctx, f.db, f.userID, b2, types.FeedbackNotInterested, 1, now.AddDate(0, 0, -900))
	f.bl.Add(ctx, f.userID, b0, b1, b2)

	n, err := f.svc.Decay(ctx, f.userID, 0.1)
	if err != nil || n != 1 {
		t.Fatalf("Decay: n=%d err=%v", n, err)
	}
	if !f.bl.IsBlacklisted(ctx, f.userID, b0) || f.bl.IsBlacklisted(ctx, f.userID, b1) || f.bl.IsBlacklisted(ctx, f.userID, b2) {
		t.Fatalf("unexpected blacklist after decay: %v", f.bl.Members(ctx, f.userID))
	}
	active, _ := f.feedback.ListActiveByUser(dbctx.Context{Ctx: ctx}, f.userID)
	if len(active) != 2 {
		t.Fatalf("expected 2 active records after decay, got %d", len(active))
	}

	stats, err := f.svc.Stats(ctx, f.userID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalFeedbacks != 2 || stats.FeedbackByType[types.FeedbackNotInterested] != 2 || stats.BlacklistCount != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDecayedStrength(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		strength int
		age      time.Duration
		want     float64
	}{
		{name: "fresh", strength: 2, age: 0, want: 2},
		{name: "partial day floors", strength: 1, age: 29 * time.Hour, want: math.Exp(-0.1 / 30)},
		{name: "one month", strength: 3, age: 30 * 24 * time.Hour, want: 3 * math.Exp(-0.1)},
		{name: "future", strength: 1, age: -time.Hour, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decayedStrength(tc.strength, now.Add(-tc.age), now, 0.1)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("decayedStrength = %v, want %v", got, tc.want)
			}
		})
	}
}
