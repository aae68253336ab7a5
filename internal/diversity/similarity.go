package diversity

import types "github.com/yungbote/bookrec-backend/internal/domain"

const (
	categoryWeight = 0.5
	authorWeight   = 0.3
	tagWeight      = 0.2

	// sameAuthorSimilarity is the author-dimension value for a match.
	sameAuthorSimilarity = 0.8
)

// Similarity is 0.5*category + 0.3*author + 0.2*tag Jaccard.
func Similarity(a, b types.Candidate) float64 {
	var cat, author float64
	if a.Category != "" && a.Category == b.Category {
		cat = 1
	}
	if a.Author != "" && a.Author == b.Author {
		author = sameAuthorSimilarity
	}
	return categoryWeight*cat + authorWeight*author + tagWeight*jaccard(a.Tags, b.Tags)
}

// jaccard is zero when either side is empty.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
