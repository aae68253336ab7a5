package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/bookrec-backend/internal/http/handlers"
	httpMW "github.com/yungbote/bookrec-backend/internal/http/middleware"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics
	// ServiceName labels spans; tracing middleware is skipped when empty.
	ServiceName string
	CORSOrigins []string

	HealthHandler         *httpH.HealthHandler
	RecommendationHandler *httpH.RecommendationHandler
	FeedbackHandler       *httpH.FeedbackHandler
	InteractionHandler    *httpH.InteractionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Recommendations
		if cfg.RecommendationHandler != nil {
			api.POST("/recommendations/cold-start", cfg.RecommendationHandler.ColdStart)
			api.GET("/recommendations/:user_id", cfg.RecommendationHandler.GetRecommendations)
			api.GET("/recommendations/:user_id/diversity", cfg.RecommendationHandler.DiversityMetrics)
		}

		// Negative feedback
		if cfg.FeedbackHandler != nil {
			api.POST("/users/:user_id/negative-feedback", cfg.FeedbackHandler.Submit)
			api.GET("/users/:user_id/negative-feedback/stats", cfg.FeedbackHandler.Stats)
			api.DELETE("/users/:user_id/negative-feedback/:book_id", cfg.FeedbackHandler.Remove)
		}

		// Behaviour
		if cfg.InteractionHandler != nil {
			api.POST("/users/:user_id/interactions", cfg.InteractionHandler.RecordInteraction)
			api.POST("/users/:user_id/exposures", cfg.InteractionHandler.RecordExposure)
			api.POST("/users/:user_id/searches", cfg.InteractionHandler.RecordSearch)
		}
	}

	return r
}
