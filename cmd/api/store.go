package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/quizgate/internal/config"
	"github.com/BradenHooton/quizgate/internal/database"
	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/BradenHooton/quizgate/internal/repositories"
	"github.com/BradenHooton/quizgate/internal/services"
	pkglogger "github.com/BradenHooton/quizgate/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// openStore connects the configured code store backend. The returned close
// function releases its connections.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.AccessCodeRepository, func(), error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		if err := database.Migrate(ctx, cfg.Database.DSN(), logger); err != nil {
			return nil, nil, err
		}
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewAccessCodeRepository(db), db.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
		}

		logger.Info("redis store connected",
			pkglogger.RedactedAttr("addr", cfg.Redis.Addr, cfg.Server.Env),
			slog.Int("db", cfg.Redis.DB),
			slog.String("key_prefix", cfg.Redis.KeyPrefix))

		repo := repositories.NewRedisAccessCodeRepository(client, cfg.Redis.KeyPrefix, cfg.Redis.Retention)
		return repo, func() { _ = client.Close() }, nil

	case config.StoreBolt:
		db, err := repositories.OpenBoltDB(cfg.Store.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		repo, err := repositories.NewBoltAccessCodeRepository(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		logger.Info("bolt store opened", slog.String("path", cfg.Store.BoltPath))
		return repo, func() { _ = db.Close() }, nil

	default:
		logger.Warn("using in-memory code store; codes are lost on restart")
		return repositories.NewMemoryAccessCodeRepository(), func() {}, nil
	}
}

// seedStaticCodes loads STATIC_CODES_FILE and creates the codes that are missing
func seedStaticCodes(ctx context.Context, path string, admin *services.AdminService, logger *slog.Logger) error {
	static, err := config.LoadStaticCodes(path)
	if err != nil {
		return err
	}

	now := time.Now()
	codes := make([]*models.AccessCode, 0, len(static))
	for _, sc := range static {
		codes = append(codes, &models.AccessCode{
			Code:      sc.Code,
			MaxUses:   sc.MaxUses,
			CreatedAt: now,
			ExpiresAt: sc.Expiry(now),
		})
	}

	created, err := admin.SeedCodes(ctx, codes)
	if err != nil {
		return err
	}

	logger.Info("static codes seeded",
		slog.Int("created", created),
		slog.Int("configured", len(static)))
	return nil
}
