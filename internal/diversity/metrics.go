package diversity

import (
	"math"

	types "github.com/yungbote/bookrec-backend/internal/domain"
)

type Metrics struct {
	CategoryEntropy float64 `json:"category_entropy"`
	AuthorCoverage  float64 `json:"author_coverage"`
	YearDiversity   float64 `json:"year_diversity"`
	OverallScore    float64 `json:"overall_score"`
}

// ComputeMetrics reports base-2 category entropy, the share of distinct
// authors, the population std-dev of publication years and a blended score.
func ComputeMetrics(list []types.Candidate) Metrics {
	if len(list) == 0 {
		return Metrics{}
	}
	total := float64(len(list))

	cats := map[string]int{}
	authors := map[string]struct{}{}
	var years []float64
	for _, c := range list {
		cat := c.Category
		if cat == "" {
			cat = "Unknown"
		}
		cats[cat]++
		if c.Author != "" {
			authors[c.Author] = struct{}{}
		}
		if c.PublicationYear > 0 {
			years = append(years, float64(c.PublicationYear))
		}
	}

	entropy := 0.0
	for _, n := range cats {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	coverage := float64(len(authors)) / total

	yearStd := 0.0
	if len(years) > 1 {
		mean := 0.0
		for _, y := range years {
			mean += y
		}
		mean /= float64(len(years))
		variance := 0.0
		for _, y := range years {
			variance += (y - mean) * (y - mean)
		}
		yearStd = math.Sqrt(variance / float64(len(years)))
	}

	maxEntropy := 1.0
	if len(list) > 1 {
		maxEntropy = math.Log2(total)
	}
	overall := 0.4*(entropy/maxEntropy) + 0.4*coverage + 0.2*math.Min(yearStd/20, 1)

	return Metrics{
		CategoryEntropy: round(entropy, 3),
		AuthorCoverage:  round(coverage, 3),
		YearDiversity:   round(yearStd, 2),
		OverallScore:    round(overall, 3),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
