package services

import (
	"context"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	"github.com/yungbote/bookrec-backend/internal/diversity"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

const exploreCategoryLimit = 3

// InterestProfiler derives a UserInterestProfile from interaction history.
// Store failures yield an empty profile.
type InterestProfiler interface {
	Profile(ctx context.Context, userID int64) types.UserInterestProfile
}

type interestProfiler struct {
	interactions repos.InteractionRepo
	books        repos.BookRepo
	ratios       diversity.Ratios
	log          *logger.Logger
}

func NewInterestProfiler(interactions repos.InteractionRepo, books repos.BookRepo, ratios diversity.Ratios, baseLog *logger.Logger) InterestProfiler {
	if ratios == (diversity.Ratios{}) {
		ratios = diversity.DefaultRatios
	}
	return &interestProfiler{
		interactions: interactions,
		books:        books,
		ratios:       ratios,
		log:          baseLog.With("service", "InterestProfiler"),
	}
}

func (p *interestProfiler) Profile(ctx context.Context, userID int64) types.UserInterestProfile {
	profile := types.NewUserInterestProfile()
	profile.Distribution = []types.CategoryShare{}

	dbc := dbctx.Context{Ctx: ctx}
	counts, err := p.interactions.CategoryCounts(dbc, userID)
	if err != nil {
		p.log.Warn("Category counts failed", "user_id", userID, "error", err)
		return profile
	}
	if len(counts) == 0 {
		return profile
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	profile.TotalInteractions = total

	// A category's tier is decided by the share of history covered before it.
	cumulative := 0.0
	for _, c := range counts {
		ratio := 0.0
		if total > 0 {
			ratio = float64(c.Count) / float64(total)
		}
		profile.Distribution = append(profile.Distribution, types.CategoryShare{Name: c.Name, Count: c.Count, Ratio: ratio})
		switch {
		case cumulative < p.ratios.Primary:
			profile.Primary[c.Name] = true
		case cumulative < p.ratios.Primary+p.ratios.Secondary:
			profile.Secondary[c.Name] = true
		}
		cumulative += ratio
	}

	names, err := p.books.ListCategoryNames(dbc)
	if err != nil {
		p.log.Warn("List categories failed", "user_id", userID, "error", err)
		return profile
	}
	for _, name := range names {
		if len(profile.Explore) >= exploreCategoryLimit {
			break
		}
		if interacted(profile, name) {
			continue
		}
		profile.Explore[name] = true
	}
	return profile
}

func interacted(profile types.UserInterestProfile, name string) bool {
	for _, d := range profile.Distribution {
		if d.Name == name {
			return true
		}
	}
	return false
}
