package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type Repos struct {
	Book             repos.BookRepo
	User             repos.UserRepo
	Interaction      repos.InteractionRepo
	SearchLog        repos.SearchLogRepo
	NegativeFeedback repos.NegativeFeedbackRepo
	Exposure         repos.ExposureRepo
	Cache            repos.RecommendationCacheRepo
	History          repos.RecommendationHistoryRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Book:             repos.NewBookRepo(db, log),
		User:             repos.NewUserRepo(db, log),
		Interaction:      repos.NewInteractionRepo(db, log),
		SearchLog:        repos.NewSearchLogRepo(db, log),
		NegativeFeedback: repos.NewNegativeFeedbackRepo(db, log),
		Exposure:         repos.NewExposureRepo(db, log),
		Cache:            repos.NewRecommendationCacheRepo(db, log),
		History:          repos.NewRecommendationHistoryRepo(db, log),
	}
}
