package recs

const (
	SourceSearch      = "search"
	SourceCollab      = "collab"
	SourceDemographic = "demog"
	SourcePreference  = "pref"
	SourceContent     = "content"
	SourcePopular     = "popular"
	SourceColdStart   = "cold_start"
	SourceCache       = "cache"
)

// Candidate carries everything downstream stages read about a book. It is
// filled once by the stage that produces it.
type Candidate struct {
	BookID          int64    `json:"book_id"`
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	Category        string   `json:"category"`
	PublicationYear int      `json:"publication_year,omitempty"`
	Score           float64  `json:"score"`
	Reason          string   `json:"reason"`
	Tags            []string `json:"tags"`
	Source          string   `json:"source"`
	// GraphReason is the raw explanation value returned by the graph query.
	GraphReason string `json:"-"`
}

func (c Candidate) ToCached() CachedRecommendation {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return CachedRecommendation{BookID: c.BookID, Score: c.Score, Reason: c.Reason, Tags: tags}
}

func ToCachedList(in []Candidate) []CachedRecommendation {
	out := make([]CachedRecommendation, 0, len(in))
	for _, c := range in {
		out = append(out, c.ToCached())
	}
	return out
}

func CandidateIDs(in []Candidate) []int64 {
	out := make([]int64, 0, len(in))
	for _, c := range in {
		out = append(out, c.BookID)
	}
	return out
}
