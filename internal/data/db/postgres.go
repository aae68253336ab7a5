package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type Options struct {
	Driver     string // postgres | sqlite
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SQLitePath string
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(opts Options, logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "DBService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "sqlite":
		path := opts.SQLitePath
		if path == "" {
			path = "file:bookrec?mode=memory&cache=shared"
		}
		dialector = sqlite.Open(path)
	case "", "postgres":
		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			opts.User,
			opts.Password,
			opts.Host,
			opts.Port,
			opts.Name,
		)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialector.Name(), err)
	}
	serviceLog.Info("Database connected", "driver", dialector.Name())
	return &Service{db: db, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	return AutoMigrateAll(s.db)
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
