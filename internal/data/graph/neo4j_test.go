package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

func TestStoreWithoutClient(t *testing.T) {
	s := NewStore(nil, logger.Nop())
	ctx := context.Background()

	if s.Available() {
		t.Fatalf("expected unavailable store")
	}
	if _, err := s.ExtendedNeighbours(ctx, 1, DefaultNeighbourLimits); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ExtendedNeighbours err=%v, want ErrUnavailable", err)
	}
	if _, err := s.LocalNeighbours(ctx, 1, 10); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("LocalNeighbours err=%v, want ErrUnavailable", err)
	}
	if _, err := s.Candidates(ctx, CandidateQuery{UserID: 1, Limit: 5}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Candidates err=%v, want ErrUnavailable", err)
	}
	if err := s.SyncDislike(ctx, 1, 2, "not_interested", 2); err != nil {
		t.Fatalf("SyncDislike: %v", err)
	}
	if err := s.SyncInteraction(ctx, 1, 2, "click", nil); err != nil {
		t.Fatalf("SyncInteraction: %v", err)
	}
	if err := s.RemoveDislike(ctx, 1, 2); err != nil {
		t.Fatalf("RemoveDislike: %v", err)
	}
	s.EnsureSchema(ctx)
}

func TestCandidatesZeroLimit(t *testing.T) {
	s := NewStore(nil, logger.Nop())
	out, err := s.Candidates(context.Background(), CandidateQuery{UserID: 1})
	if err != nil || out != nil {
		t.Fatalf("expected nil, nil; got %v, %v", out, err)
	}
}

func TestRecordValues(t *testing.T) {
	rec := &neo4j.Record{
		Keys:   []string{"ids", "id", "score", "name", "missing"},
		Values: []any{[]any{int64(3), nil, int64(7)}, int64(42), int64(4), "Sci-Fi", nil},
	}
	if got := recInt64s(rec, "ids"); !reflect.DeepEqual(got, []int64{3, 7}) {
		t.Fatalf("ids=%v", got)
	}
	if got := recInt64(rec, "id"); got != 42 {
		t.Fatalf("id=%d", got)
	}
	if got := recFloat(rec, "score"); got != 4 {
		t.Fatalf("score=%v", got)
	}
	if got := recString(rec, "name"); got != "Sci-Fi" {
		t.Fatalf("name=%q", got)
	}
	if got := recString(rec, "missing"); got != "" {
		t.Fatalf("missing=%q", got)
	}
	if got := recInt64s(rec, "nope"); got != nil {
		t.Fatalf("nope=%v", got)
	}
}
