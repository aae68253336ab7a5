package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/bookrec-backend/internal/data/db"
	apihttp "github.com/yungbote/bookrec-backend/internal/http"
	"github.com/yungbote/bookrec-backend/internal/jobs/worker"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Metrics  *observability.Metrics
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *apihttp.Server

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

// New builds the full object graph. Nothing is started until Run.
func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbService, err := db.NewService(db.Options{
		Driver:     cfg.Database.Driver,
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		Name:       cfg.Database.Name,
		SQLitePath: cfg.Database.SQLitePath,
	}, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()

	metrics := observability.NewMetrics()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		Headers:     cfg.Tracing.Headers,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})

	clients, err := wireClients(log, cfg, metrics)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, clients, reposet, metrics)
	if err != nil {
		clients.Close(ctx)
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}
	serviceset.Graph.EnsureSchema(ctx)

	handlerset := wireHandlers(log, theDB, clients.KV, serviceset)
	server := wireServer(log, cfg, handlerset, metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Metrics:      metrics,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       server,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and the background jobs under one supervisor until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}

	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.KV)
	a.Metrics.StartQueueCollector(ctx, a.Log, a.Services.Events.LaneDepths)

	sup := worker.NewSupervisor("bookrec", a.Log, worker.SupervisorConfig{
		ShutdownTimeout: a.Cfg.Worker.ShutdownTimeout,
	})
	sup.Add(&httpService{server: a.Server, addr: ":" + a.Cfg.Port, shutdownTimeout: a.Cfg.Worker.ShutdownTimeout})
	if a.Cfg.Worker.Enabled {
		sup.Add(a.Services.Worker)
	}
	if a.Cfg.Recs.DecayCron != "" {
		sup.Add(a.Services.Decay)
	}

	err := sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	a.Clients.Close(ctx)
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
