package diversity

import (
	"math"
	"testing"

	types "github.com/yungbote/bookrec-backend/internal/domain"
)

func cand(id int64, score float64, category, author string, tags ...string) types.Candidate {
	return types.Candidate{BookID: id, Score: score, Category: category, Author: author, Tags: tags}
}

func ids(in []types.Candidate) []int64 { return types.CandidateIDs(in) }

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeQuota, false},
		{"quota", ModeQuota, false},
		{" MMR ", ModeMMR, false},
		{"none", ModeNone, false},
		{"random", "", true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseMode(%q) err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b types.Candidate
		want float64
	}{
		{"identical", cand(1, 0, "scifi", "Le Guin", "space"), cand(2, 0, "scifi", "Le Guin", "space"), 0.5 + 0.24 + 0.2},
		{"category only", cand(1, 0, "scifi", "A"), cand(2, 0, "scifi", "B"), 0.5},
		{"author only", cand(1, 0, "scifi", "A"), cand(2, 0, "history", "A"), 0.24},
		{"half tags", cand(1, 0, "x", "A", "a", "b"), cand(2, 0, "y", "B", "b", "c", "a"), 0.2 * 2.0 / 3.0},
		{"empty tags", cand(1, 0, "x", "A", "a"), cand(2, 0, "y", "B"), 0},
		{"empty category never matches", cand(1, 0, "", ""), cand(2, 0, "", ""), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Similarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Similarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestQuota(t *testing.T) {
	r := New(Options{})
	profile := types.NewUserInterestProfile()
	profile.Primary["scifi"] = true
	profile.Secondary["history"] = true
	profile.Explore["poetry"] = true

	var in []types.Candidate
	for i := int64(1); i <= 8; i++ {
		in = append(in, cand(i, 1-float64(i)/100, "scifi", "A"))
	}
	for i := int64(11); i <= 15; i++ {
		in = append(in, cand(i, 0.5-float64(i)/100, "history", "B"))
	}
	in = append(in, cand(21, 0.3, "poetry", "C"), cand(22, 0.2, "poetry", "C"), cand(23, 0.1, "poetry", "C"))
	in = append(in, cand(31, 0.05, "travel", "D"))

	// limit 10: primary 4, secondary 3, explore 2, popular 1.
	got := ids(r.Quota(in, profile, 10))
	want := []int64{1, 2, 3, 4, 11, 12, 13, 21, 22, 31}
	if !equalIDs(got, want) {
		t.Fatalf("Quota = %v, want %v", got, want)
	}

	// Missing tiers are back-filled by score.
	onlyPrimary := in[:8]
	got = ids(r.Quota(onlyPrimary, profile, 6))
	want = []int64{1, 2, 3, 4, 5, 6}
	if !equalIDs(got, want) {
		t.Fatalf("backfill Quota = %v, want %v", got, want)
	}

	if got := r.Quota(nil, profile, 10); len(got) != 0 {
		t.Fatalf("empty input should give empty output, got %v", got)
	}
	if got := r.Quota(in, profile, 0); len(got) != 0 {
		t.Fatalf("limit 0 should give empty output, got %v", got)
	}
}

func TestQuotaSmallLimit(t *testing.T) {
	r := New(Options{})
	q := r.quotas(2)
	if q.primary != 1 || q.secondary != 1 || q.explore != 1 || q.popular != 0 {
		t.Fatalf("quotas(2) = %+v", q)
	}
	profile := types.NewUserInterestProfile()
	profile.Primary["a"] = true
	profile.Secondary["b"] = true
	profile.Explore["c"] = true
	in := []types.Candidate{cand(1, 0.9, "a", ""), cand(2, 0.8, "b", ""), cand(3, 0.7, "c", "")}
	if got := r.Quota(in, profile, 2); len(got) != 2 {
		t.Fatalf("output must not exceed limit, got %v", ids(got))
	}
}

func TestMMR(t *testing.T) {
	r := New(Options{MMRLambda: 0.5})
	in := []types.Candidate{
		cand(1, 0.9, "scifi", "A", "space"),
		cand(2, 0.85, "scifi", "A", "space"),
		cand(3, 0.6, "history", "B", "war"),
		cand(4, 0.5, "poetry", "C"),
	}
	got := ids(r.MMR(in, nil, 3))
	// 2 is nearly identical to 1 and is penalised below the unrelated items.
	want := []int64{1, 3, 4}
	if !equalIDs(got, want) {
		t.Fatalf("MMR = %v, want %v", got, want)
	}

	// Pure relevance with lambda 1.
	got = ids(New(Options{MMRLambda: 1}).MMR(in, nil, 4))
	if !equalIDs(got, []int64{1, 2, 3, 4}) {
		t.Fatalf("lambda=1 MMR = %v", got)
	}

	// Pre-selected items lead the output and are never duplicated.
	got = ids(r.MMR(in, []types.Candidate{in[2]}, 3))
	if got[0] != 3 || len(got) != 3 {
		t.Fatalf("seeded MMR = %v", got)
	}
	seen := map[int64]bool{}
	for _, id := range got {
		if seen[id] {
			t.Fatalf("duplicate %d in %v", id, got)
		}
		seen[id] = true
	}

	if got := r.MMR(in, nil, 10); len(got) != 4 {
		t.Fatalf("limit above input should return all, got %v", ids(got))
	}
}

func TestMMRNegativeScores(t *testing.T) {
	r := New(Options{MMRLambda: 0.5})
	in := []types.Candidate{cand(1, -2, "a", ""), cand(2, -3, "a", "")}
	if got := r.MMR(in, nil, 2); len(got) != 2 {
		t.Fatalf("negative scores must still be selected, got %v", ids(got))
	}
}

func TestSlidingWindow(t *testing.T) {
	r := New(Options{Window: WindowOptions{Size: 6, CategoryLimit: 2, AuthorLimit: 2}})
	scifi := &types.Category{ID: 1, Name: "scifi"}
	books := map[int64]*types.Book{
		100: {ID: 100, Author: "A", Category: scifi},
		101: {ID: 101, Author: "A", Category: scifi},
		102: {ID: 102, Author: "B"},
	}
	// 99 falls outside the window of 6.
	history := []int64{99, 100, 101, 102, 103, 104, 105}

	in := []types.Candidate{
		cand(99, 1, "x", "Z"),
		cand(100, 1, "scifi", "A"),
		cand(200, 1, "scifi", "A"),
		cand(201, 1, "scifi", "C"),
		cand(202, 1, "history", "A"),
		cand(203, 1, "history", "B"),
	}
	out := r.SlidingWindow(in, history, books)
	scores := map[int64]float64{}
	for _, c := range out {
		scores[c.BookID] = c.Score
	}
	if _, ok := scores[100]; ok {
		t.Fatalf("recently served book should be dropped")
	}
	want := map[int64]float64{99: 1, 200: 0.25, 201: 0.5, 202: 0.5, 203: 1}
	for id, w := range want {
		if got, ok := scores[id]; !ok || math.Abs(got-w) > 1e-9 {
			t.Fatalf("score[%d] = %v (present=%v), want %v", id, got, ok, w)
		}
	}

	if got := r.SlidingWindow(in, nil, nil); len(got) != len(in) {
		t.Fatalf("empty history should pass through")
	}
}

func TestComputeMetrics(t *testing.T) {
	if m := ComputeMetrics(nil); m != (Metrics{}) {
		t.Fatalf("empty list metrics = %+v", m)
	}

	uniform := []types.Candidate{
		{BookID: 1, Category: "a", Author: "x", PublicationYear: 2000},
		{BookID: 2, Category: "b", Author: "y", PublicationYear: 2020},
	}
	m := ComputeMetrics(uniform)
	if m.CategoryEntropy != 1 || m.AuthorCoverage != 1 || m.YearDiversity != 10 {
		t.Fatalf("uniform metrics = %+v", m)
	}
	// 0.4*1 + 0.4*1 + 0.2*0.5
	if m.OverallScore != 0.9 {
		t.Fatalf("overall = %v, want 0.9", m.OverallScore)
	}

	same := []types.Candidate{{BookID: 1, Author: "x"}, {BookID: 2, Author: "x"}}
	m = ComputeMetrics(same)
	if m.CategoryEntropy != 0 || m.AuthorCoverage != 0.5 || m.YearDiversity != 0 {
		t.Fatalf("homogeneous metrics = %+v", m)
	}
	if m.OverallScore != 0.2 {
		t.Fatalf("overall = %v, want 0.2", m.OverallScore)
	}
}

func TestApplyNone(t *testing.T) {
	r := New(Options{})
	in := []types.Candidate{cand(1, 0.1, "", ""), cand(2, 0.9, "", ""), cand(3, 0.5, "", "")}
	got := ids(r.Apply(ModeNone, in, types.NewUserInterestProfile(), 2))
	if !equalIDs(got, []int64{2, 3}) {
		t.Fatalf("none = %v", got)
	}
}
