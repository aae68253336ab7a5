package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/bookrec-backend/internal/data/graph"
	"github.com/yungbote/bookrec-backend/internal/diversity"
	"github.com/yungbote/bookrec-backend/internal/jobs/decay"
	"github.com/yungbote/bookrec-backend/internal/jobs/worker"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
	"github.com/yungbote/bookrec-backend/internal/services"
)

type Services struct {
	Graph          *graph.Store
	Cache          services.CacheManager
	Blacklist      services.BlacklistService
	Events         services.EventBus
	Feedback       services.NegativeFeedbackService
	Impact         services.ImpactAnalyzer
	Profiler       services.InterestProfiler
	Recommendation services.RecommendationService
	Interaction    services.InteractionService

	Worker *worker.Worker
	Decay  *decay.Job
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	mode, err := diversity.ParseMode(cfg.Diversity.Mode)
	if err != nil {
		return Services{}, err
	}
	ratios := diversity.Ratios{
		Primary:   cfg.Diversity.PrimaryRatio,
		Secondary: cfg.Diversity.SecondaryRatio,
		Explore:   cfg.Diversity.ExploreRatio,
		Popular:   cfg.Diversity.PopularRatio,
	}

	graphStore := graph.NewStore(clients.Neo4j, log)

	cache := services.NewCacheManager(clients.KV, reposet.Cache, log, metrics, services.CacheOptions{
		L1TTL: cfg.Recs.CacheL1TTL,
		L2TTL: cfg.Recs.CacheL2TTL,
		Limit: cfg.Recs.Limit,
	})
	blacklist := services.NewBlacklistService(clients.KV, reposet.NegativeFeedback, reposet.Book, graphStore, log)
	events := services.NewEventBus(clients.KV, log, metrics, services.EventBusOptions{
		ClickThreshold: cfg.Recs.ClickThreshold,
	})
	feedback := services.NewNegativeFeedbackService(
		reposet.NegativeFeedback,
		reposet.Exposure,
		reposet.Book,
		blacklist,
		graphStore,
		events,
		log,
		metrics,
		services.FeedbackOptions{
			ExposureThreshold: cfg.Recs.ExposureThreshold,
			SoftPenaltyFactor: cfg.Recs.SoftPenaltyFactor,
		},
	)
	impact := services.NewImpactAnalyzer(graphStore, log, services.ImpactOptions{
		MaxCacheAge: cfg.Recs.IncrementalMaxCacheAge,
		MaxAffected: cfg.Recs.IncrementalMaxAffected,
	})
	profiler := services.NewInterestProfiler(reposet.Interaction, reposet.Book, ratios, log)

	recommendation, err := services.NewRecommendationService(services.RecommendationDeps{
		Cache:        cache,
		Blacklist:    blacklist,
		Feedback:     feedback,
		Profiler:     profiler,
		Graph:        graphStore,
		Reranker:     clients.Reranker,
		Books:        reposet.Book,
		Users:        reposet.User,
		Interactions: reposet.Interaction,
		Searches:     reposet.SearchLog,
		History:      reposet.History,
		Log:          log,
		Metrics:      metrics,
		Diversity: diversity.New(diversity.Options{
			Ratios:    ratios,
			MMRLambda: cfg.Diversity.MMRLambda,
			Window: diversity.WindowOptions{
				Size:          cfg.Diversity.WindowSize,
				CategoryLimit: cfg.Diversity.WindowCategoryLimit,
				AuthorLimit:   cfg.Diversity.WindowAuthorLimit,
			},
		}),
	}, services.RecommendationOptions{
		Limit:                 cfg.Recs.Limit,
		Mode:                  mode,
		RerankShortlist:       cfg.Recs.RerankCandidateLimit,
		FallbackCount:         cfg.Recs.RerankPassthroughLimit,
		CategoryAuthorPenalty: cfg.Recs.CategoryAuthorPenalty,
		CandidateMultiplier:   cfg.Recs.GraphCandidateMultiplier,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init recommendation service: %w", err)
	}

	interaction, err := services.NewInteractionService(services.InteractionDeps{
		DB:           db,
		Books:        reposet.Book,
		Interactions: reposet.Interaction,
		Searches:     reposet.SearchLog,
		Exposures:    reposet.Exposure,
		Graph:        graphStore,
		Impact:       impact,
		Events:       events,
		Cache:        cache,
		Feedback:     feedback,
		Log:          log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init interaction service: %w", err)
	}

	recomputeWorker := worker.NewWorker(clients.KV, events, cache, impact, recommendation.Compute, log, metrics, worker.Options{
		PollTimeout: cfg.Worker.PollTimeout,
		Subscribe:   cfg.Worker.Subscribe,
		Limit:       cfg.Recs.Limit,
	})
	decayJob := decay.NewJob(feedback, reposet.NegativeFeedback, cfg.Recs.DecayCron, cfg.Recs.DecayLambda, log)

	return Services{
		Graph:          graphStore,
		Cache:          cache,
		Blacklist:      blacklist,
		Events:         events,
		Feedback:       feedback,
		Impact:         impact,
		Profiler:       profiler,
		Recommendation: recommendation,
		Interaction:    interaction,
		Worker:         recomputeWorker,
		Decay:          decayJob,
	}, nil
}
