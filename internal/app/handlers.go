package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/bookrec-backend/internal/http/handlers"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type Handlers struct {
	Health         *httpH.HealthHandler
	Recommendation *httpH.RecommendationHandler
	Feedback       *httpH.FeedbackHandler
	Interaction    *httpH.InteractionHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, kv kvstore.Store, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:         httpH.NewHealthHandler(kv, db),
		Recommendation: httpH.NewRecommendationHandler(services.Recommendation),
		Feedback:       httpH.NewFeedbackHandler(services.Feedback),
		Interaction:    httpH.NewInteractionHandler(services.Interaction),
	}
}
