package app

import (
	"context"
	"fmt"

	"github.com/yungbote/bookrec-backend/internal/clients/llm"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
	"github.com/yungbote/bookrec-backend/internal/platform/neo4jdb"
)

type Clients struct {
	KV    *kvstore.Client
	Neo4j *neo4jdb.Client
	// Reranker is nil when no LLM endpoint is configured.
	Reranker llm.Reranker
}

func wireClients(log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	kv, err := kvstore.New(kvstore.Options{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		OpTimeout: cfg.Redis.OpTimeout,
	}, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}

	// Neo4j
	graphClient, err := neo4jdb.New(neo4jdb.Options{
		URI:         cfg.Neo4j.URI,
		User:        cfg.Neo4j.User,
		Password:    cfg.Neo4j.Password,
		Database:    cfg.Neo4j.Database,
		Timeout:     cfg.Neo4j.Timeout,
		MaxPoolSize: cfg.Neo4j.MaxPoolSize,
	}, log)
	if err != nil {
		// The graph is optional; the pipeline falls back to popularity.
		log.Warn("Neo4j unavailable, continuing without graph", "error", err)
		graphClient = nil
	}

	// LLM
	reranker, err := llm.NewClient(llm.Options{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	}, log, metrics)
	if err != nil {
		_ = kv.Close()
		return Clients{}, fmt.Errorf("init llm client: %w", err)
	}
	if reranker != nil {
		reranker = llm.WithBreaker(reranker, llm.BreakerOptions{Name: "llm-rerank"}, log, metrics)
	}

	return Clients{KV: kv, Neo4j: graphClient, Reranker: reranker}, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
	if c.KV != nil {
		_ = c.KV.Close()
	}
}
