package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/envutil"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type Config struct {
	Environment string   `yaml:"environment"`
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`

	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	LLM       LLMConfig       `yaml:"llm"`
	Recs      RecsConfig      `yaml:"recommendation"`
	Diversity DiversityConfig `yaml:"diversity"`
	Worker    WorkerConfig    `yaml:"worker"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	OpTimeout time.Duration `yaml:"op_timeout"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres | sqlite
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

type Neo4jConfig struct {
	URI         string        `yaml:"uri"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxPoolSize int           `yaml:"max_pool_size"`
}

type LLMConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type RecsConfig struct {
	Limit                    int           `yaml:"limit"`
	CacheL1TTL               time.Duration `yaml:"cache_l1_ttl"`
	CacheL2TTL               time.Duration `yaml:"cache_l2_ttl"`
	ClickThreshold           int           `yaml:"click_invalidation_threshold"`
	ExposureThreshold        int           `yaml:"implicit_negative_exposure_threshold"`
	SoftPenaltyFactor        float64       `yaml:"soft_penalty_factor"`
	CategoryAuthorPenalty    float64       `yaml:"category_author_penalty"`
	DecayLambda              float64       `yaml:"decay_lambda"`
	DecayCron                string        `yaml:"decay_cron"`
	IncrementalMaxCacheAge   time.Duration `yaml:"incremental_max_cache_age"`
	IncrementalMaxAffected   int           `yaml:"incremental_max_affected"`
	GraphCandidateMultiplier int           `yaml:"graph_candidate_multiplier"`
	RerankCandidateLimit     int           `yaml:"rerank_candidate_limit"`
	RerankPassthroughLimit   int           `yaml:"rerank_passthrough_limit"`
}

type DiversityConfig struct {
	Mode                string  `yaml:"mode"`
	MMRLambda           float64 `yaml:"mmr_lambda"`
	PrimaryRatio        float64 `yaml:"primary_ratio"`
	SecondaryRatio      float64 `yaml:"secondary_ratio"`
	ExploreRatio        float64 `yaml:"explore_ratio"`
	PopularRatio        float64 `yaml:"popular_ratio"`
	WindowSize          int     `yaml:"window_size"`
	WindowCategoryLimit int     `yaml:"window_category_limit"`
	WindowAuthorLimit   int     `yaml:"window_author_limit"`
}

type WorkerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Subscribe       bool          `yaml:"subscribe"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type TracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	Headers     map[string]string `yaml:"headers"`
	Insecure    bool              `yaml:"insecure"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

func DefaultConfig() Config {
	return Config{
		Environment: "development",
		Port:        "8080",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			OpTimeout: 2 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			Host:   "localhost",
			Port:   "5432",
			User:   "postgres",
			Name:   "bookrec",
		},
		Neo4j: Neo4jConfig{
			User:        "neo4j",
			Timeout:     10 * time.Second,
			MaxPoolSize: 50,
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com",
			Model:      "gpt-4o-mini",
			Timeout:    15 * time.Second,
			MaxRetries: 1,
		},
		Recs: RecsConfig{
			Limit:                    10,
			CacheL1TTL:               300 * time.Second,
			CacheL2TTL:               86400 * time.Second,
			ClickThreshold:           3,
			ExposureThreshold:        10,
			SoftPenaltyFactor:        0.1,
			CategoryAuthorPenalty:    0.5,
			DecayLambda:              0.1,
			DecayCron:                "@daily",
			IncrementalMaxCacheAge:   time.Hour,
			IncrementalMaxAffected:   30,
			GraphCandidateMultiplier: 3,
			RerankCandidateLimit:     15,
			RerankPassthroughLimit:   10,
		},
		Diversity: DiversityConfig{
			Mode:                "quota",
			MMRLambda:           0.5,
			PrimaryRatio:        0.4,
			SecondaryRatio:      0.3,
			ExploreRatio:        0.2,
			PopularRatio:        0.1,
			WindowSize:          50,
			WindowCategoryLimit: 5,
			WindowAuthorLimit:   3,
		},
		Worker: WorkerConfig{
			Enabled:         true,
			PollTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Tracing: TracingConfig{
			SampleRatio: 0.1,
		},
	}
}

// LoadConfig layers defaults, an optional YAML file (BOOKREC_CONFIG_FILE) and
// environment variables, in that order.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := DefaultConfig()

	if path := envutil.String("BOOKREC_CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}

	cfg.Environment = envutil.String("APP_ENV", cfg.Environment)
	cfg.Port = envutil.String("PORT", cfg.Port)
	if raw := envutil.String("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.OpTimeout = envutil.Seconds("REDIS_OP_TIMEOUT", cfg.Redis.OpTimeout)

	cfg.Database.Driver = strings.ToLower(envutil.String("DB_DRIVER", cfg.Database.Driver))
	cfg.Database.Host = envutil.String("POSTGRES_HOST", cfg.Database.Host)
	cfg.Database.Port = envutil.String("POSTGRES_PORT", cfg.Database.Port)
	cfg.Database.User = envutil.String("POSTGRES_USER", cfg.Database.User)
	cfg.Database.Password = envutil.String("POSTGRES_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = envutil.String("POSTGRES_NAME", cfg.Database.Name)
	cfg.Database.SQLitePath = envutil.String("SQLITE_PATH", cfg.Database.SQLitePath)

	cfg.Neo4j.URI = envutil.String("NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.User = envutil.String("NEO4J_USER", cfg.Neo4j.User)
	cfg.Neo4j.Password = envutil.String("NEO4J_PASSWORD", cfg.Neo4j.Password)
	cfg.Neo4j.Database = envutil.String("NEO4J_DATABASE", cfg.Neo4j.Database)
	cfg.Neo4j.Timeout = envutil.Seconds("NEO4J_TIMEOUT_SECONDS", cfg.Neo4j.Timeout)
	cfg.Neo4j.MaxPoolSize = envutil.Int("NEO4J_MAX_POOL_SIZE", cfg.Neo4j.MaxPoolSize)

	cfg.LLM.BaseURL = strings.TrimRight(envutil.String("LLM_BASE_URL", cfg.LLM.BaseURL), "/")
	cfg.LLM.APIKey = envutil.String("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = envutil.String("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Timeout = envutil.Seconds("LLM_TIMEOUT_SECONDS", cfg.LLM.Timeout)
	cfg.LLM.MaxRetries = envutil.Int("LLM_MAX_RETRIES", cfg.LLM.MaxRetries)

	cfg.Recs.Limit = envutil.Int("RECOMMENDATION_LIMIT", cfg.Recs.Limit)
	cfg.Recs.CacheL1TTL = envutil.Seconds("CACHE_L1_TTL", cfg.Recs.CacheL1TTL)
	cfg.Recs.CacheL2TTL = envutil.Seconds("CACHE_L2_TTL", cfg.Recs.CacheL2TTL)
	cfg.Recs.ClickThreshold = envutil.Int("CLICK_INVALIDATION_THRESHOLD", cfg.Recs.ClickThreshold)
	cfg.Recs.ExposureThreshold = envutil.Int("IMPLICIT_NEGATIVE_EXPOSURE_THRESHOLD", cfg.Recs.ExposureThreshold)
	cfg.Recs.SoftPenaltyFactor = envutil.Float("SOFT_PENALTY_FACTOR", cfg.Recs.SoftPenaltyFactor)
	cfg.Recs.CategoryAuthorPenalty = envutil.Float("CATEGORY_AUTHOR_PENALTY", cfg.Recs.CategoryAuthorPenalty)
	cfg.Recs.DecayLambda = envutil.Float("DECAY_LAMBDA", cfg.Recs.DecayLambda)
	cfg.Recs.DecayCron = envutil.String("DECAY_CRON", cfg.Recs.DecayCron)

	cfg.Diversity.Mode = strings.ToLower(envutil.String("DIVERSITY_MODE", cfg.Diversity.Mode))
	cfg.Diversity.MMRLambda = envutil.Float("MMR_LAMBDA", cfg.Diversity.MMRLambda)
	cfg.Diversity.PrimaryRatio = envutil.Float("DIVERSITY_PRIMARY_RATIO", cfg.Diversity.PrimaryRatio)
	cfg.Diversity.SecondaryRatio = envutil.Float("DIVERSITY_SECONDARY_RATIO", cfg.Diversity.SecondaryRatio)
	cfg.Diversity.ExploreRatio = envutil.Float("DIVERSITY_EXPLORE_RATIO", cfg.Diversity.ExploreRatio)
	cfg.Diversity.PopularRatio = envutil.Float("DIVERSITY_POPULAR_RATIO", cfg.Diversity.PopularRatio)
	cfg.Diversity.WindowSize = envutil.Int("DIVERSITY_WINDOW_SIZE", cfg.Diversity.WindowSize)

	cfg.Worker.Enabled = envutil.Bool("WORKER_ENABLED", cfg.Worker.Enabled)
	cfg.Worker.Subscribe = envutil.Bool("WORKER_SUBSCRIBE", cfg.Worker.Subscribe)
	cfg.Worker.PollTimeout = envutil.Seconds("WORKER_POLL_TIMEOUT", cfg.Worker.PollTimeout)
	cfg.Worker.ShutdownTimeout = envutil.Seconds("WORKER_SHUTDOWN_TIMEOUT", cfg.Worker.ShutdownTimeout)

	cfg.Tracing.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.Insecure)
	cfg.Tracing.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.Tracing.SampleRatio)
	if h := observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")); h != nil {
		cfg.Tracing.Headers = h
	}

	if cfg.Recs.Limit <= 0 {
		return cfg, fmt.Errorf("RECOMMENDATION_LIMIT must be positive, got %d", cfg.Recs.Limit)
	}
	switch cfg.Diversity.Mode {
	case "quota", "mmr", "none":
	default:
		return cfg, fmt.Errorf("unknown DIVERSITY_MODE %q", cfg.Diversity.Mode)
	}
	return cfg, nil
}
