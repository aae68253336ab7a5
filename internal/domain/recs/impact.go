package recs

const (
	ScopeFull    = "full"
	ScopePartial = "partial"
)

// Impact is the set of items a behaviour event may have changed, with the
// recompute scope and queue priority derived from it.
type Impact struct {
	AffectedBooks      []int64  `json:"affected_books"`
	AffectedCategories []string `json:"affected_categories"`
	AffectedAuthors    []string `json:"affected_authors"`
	Scope              string   `json:"recompute_scope"`
	Priority           int      `json:"priority"`
}

type CategoryShare struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Ratio float64 `json:"ratio"`
}

// UserInterestProfile partitions categories by how much of a user's history
// they account for.
type UserInterestProfile struct {
	Primary           map[string]bool `json:"-"`
	Secondary         map[string]bool `json:"-"`
	Explore           map[string]bool `json:"-"`
	Distribution      []CategoryShare `json:"distribution"`
	TotalInteractions int             `json:"total_interactions"`
}

func NewUserInterestProfile() UserInterestProfile {
	return UserInterestProfile{
		Primary:   map[string]bool{},
		Secondary: map[string]bool{},
		Explore:   map[string]bool{},
	}
}
