package app

import (
	"context"
	"time"

	apihttp "github.com/yungbote/bookrec-backend/internal/http"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

const serviceName = "bookrec-api"

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *apihttp.Server {
	return apihttp.NewServer(apihttp.RouterConfig{
		Log:                   log,
		Metrics:               metrics,
		ServiceName:           serviceName,
		CORSOrigins:           cfg.CORSOrigins,
		HealthHandler:         handlers.Health,
		RecommendationHandler: handlers.Recommendation,
		FeedbackHandler:       handlers.Feedback,
		InteractionHandler:    handlers.Interaction,
	})
}

// httpService runs the API server under the supervisor.
type httpService struct {
	server          *apihttp.Server
	addr            string
	shutdownTimeout time.Duration
}

func (s *httpService) String() string { return "http-server" }

func (s *httpService) Serve(ctx context.Context) error {
	if err := s.server.Run(ctx, s.addr, s.shutdownTimeout); err != nil {
		return err
	}
	return ctx.Err()
}
