// Package diversity reorders scored candidates so one category or author
// does not dominate a list.
package diversity

import (
	"fmt"
	"sort"
	"strings"

	types "github.com/yungbote/bookrec-backend/internal/domain"
)

type Mode string

const (
	ModeQuota Mode = "quota"
	ModeMMR   Mode = "mmr"
	ModeNone  Mode = "none"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeQuota, ModeMMR, ModeNone:
		return m, nil
	case "":
		return ModeQuota, nil
	}
	return "", fmt.Errorf("unknown diversity mode %q", s)
}

// Ratios split a list between the interest tiers. Popular is informational:
// that tier receives whatever the other three leave.
type Ratios struct {
	Primary   float64
	Secondary float64
	Explore   float64
	Popular   float64
}

var DefaultRatios = Ratios{Primary: 0.4, Secondary: 0.3, Explore: 0.2, Popular: 0.1}

type WindowOptions struct {
	Size          int
	CategoryLimit int
	AuthorLimit   int
}

var DefaultWindow = WindowOptions{Size: 50, CategoryLimit: 5, AuthorLimit: 3}

type Options struct {
	Ratios    Ratios
	MMRLambda float64
	Window    WindowOptions
}

type Reranker struct {
	opts Options
}

func New(opts Options) *Reranker {
	if opts.Ratios == (Ratios{}) {
		opts.Ratios = DefaultRatios
	}
	if opts.MMRLambda <= 0 || opts.MMRLambda > 1 {
		opts.MMRLambda = 0.5
	}
	if opts.Window.Size <= 0 {
		opts.Window.Size = DefaultWindow.Size
	}
	if opts.Window.CategoryLimit <= 0 {
		opts.Window.CategoryLimit = DefaultWindow.CategoryLimit
	}
	if opts.Window.AuthorLimit <= 0 {
		opts.Window.AuthorLimit = DefaultWindow.AuthorLimit
	}
	return &Reranker{opts: opts}
}

// Apply runs the reranker for mode. Unknown modes behave like ModeNone.
func (r *Reranker) Apply(mode Mode, candidates []types.Candidate, profile types.UserInterestProfile, limit int) []types.Candidate {
	switch mode {
	case ModeQuota:
		return r.Quota(candidates, profile, limit)
	case ModeMMR:
		return r.MMR(candidates, nil, limit)
	}
	return None(candidates, limit)
}

// None is a stable score-order passthrough truncated to limit.
func None(candidates []types.Candidate, limit int) []types.Candidate {
	out := byScore(candidates)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// byScore returns a copy sorted by descending score, keeping input order for
// ties.
func byScore(in []types.Candidate) []types.Candidate {
	out := make([]types.Candidate, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
