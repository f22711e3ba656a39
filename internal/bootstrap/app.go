package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"personnage-gallery/internal/ai"
	"personnage-gallery/internal/config"
	"personnage-gallery/internal/metrics"
	"personnage-gallery/internal/model"
	"personnage-gallery/internal/platform/database"
	redisClient "personnage-gallery/internal/platform/redis"
	"personnage-gallery/internal/upload"
)

type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Store     *upload.Store
	Inference *ai.OllamaClient
	Metrics   *metrics.Metrics

	StartedAt time.Time
}

// New loads the configuration, applies its logging settings and connects
// the dependencies.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := ConfigureLogging(cfg.Log); err != nil {
		return nil, fmt.Errorf("configure logging failed: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig connects every dependency described by cfg. Redis is skipped
// when no address is configured.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.Image{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	store, err := upload.NewStore(cfg.Upload.Dir)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	if redisCli == nil {
		log.Info("redis not configured, gallery cache disabled")
	}

	inference := ai.NewOllamaClient(ai.OllamaConfig{
		BaseURL: cfg.Inference.BaseURL,
		Model:   cfg.Inference.Model,
		Timeout: cfg.InferenceTimeout(),
	})

	log.WithFields(log.Fields{
		"upload_dir": store.Dir(),
		"inference":  inference.BaseURL(),
		"model":      cfg.Inference.Model,
	}).Info("dependencies ready")

	return &App{
		Config:    cfg,
		DB:        db,
		Redis:     redisCli,
		Store:     store,
		Inference: inference,
		Metrics:   metrics.New(),
		StartedAt: time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
