package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/bookrec-backend/internal/data/repos/catalog"
	"github.com/yungbote/bookrec-backend/internal/data/repos/recs"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type BookRepo = catalog.BookRepo
type InteractionRepo = catalog.InteractionRepo
type SearchLogRepo = catalog.SearchLogRepo
type UserRepo = catalog.UserRepo
type CategoryCount = catalog.CategoryCount

type NegativeFeedbackRepo = recs.NegativeFeedbackRepo
type ExposureRepo = recs.ExposureRepo
type RecommendationCacheRepo = recs.RecommendationCacheRepo
type RecommendationHistoryRepo = recs.RecommendationHistoryRepo

func NewBookRepo(db *gorm.DB, baseLog *logger.Logger) BookRepo { return catalog.NewBookRepo(db, baseLog) }
func NewInteractionRepo(db *gorm.DB, baseLog *logger.Logger) InteractionRepo {
	return catalog.NewInteractionRepo(db, baseLog)
}
func NewSearchLogRepo(db *gorm.DB, baseLog *logger.Logger) SearchLogRepo {
	return catalog.NewSearchLogRepo(db, baseLog)
}
func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return catalog.NewUserRepo(db, baseLog) }

func NewNegativeFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) NegativeFeedbackRepo {
	return recs.NewNegativeFeedbackRepo(db, baseLog)
}
func NewExposureRepo(db *gorm.DB, baseLog *logger.Logger) ExposureRepo {
	return recs.NewExposureRepo(db, baseLog)
}
func NewRecommendationCacheRepo(db *gorm.DB, baseLog *logger.Logger) RecommendationCacheRepo {
	return recs.NewRecommendationCacheRepo(db, baseLog)
}
func NewRecommendationHistoryRepo(db *gorm.DB, baseLog *logger.Logger) RecommendationHistoryRepo {
	return recs.NewRecommendationHistoryRepo(db, baseLog)
}

var (
	IsConflict  = recs.IsConflict
	IsRetryable = recs.IsRetryable
)
