// Command ledgerd runs the engagement ledger: the HTTP API and the outbox runners
// selected by SERVICES.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(config.LogConfig{})
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // non-zero exit on startup or runtime failure
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.Log)

	logger.InfoContext(ctx, "starting engagement ledger",
		"services", bootstrap.GetEnabledServices(&cfg),
		"db", fmt.Sprintf("%s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Name),
		"dev", cfg.IsDev)

	if err := bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	infra, err := connect(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer infra.close(ctx, logger)

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, infra.db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup")
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          infra.db,
		RedisClient: infra.redis,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          infra.db,
		RedisClient: infra.redis,
		Logger:      logger,
	})
}

// infrastructure is the set of long-lived connections shared by every service.
// redis is nil when REDIS_DISABLED is set; the callback replay guard then relies
// on the ledger's own idempotency.
type infrastructure struct {
	db    *sql.DB
	redis redis.UniversalClient
}

func connect(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*infrastructure, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	db, err := bootstrap.ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	infra := &infrastructure{db: db}

	if cfg.Redis.Disabled {
		logger.InfoContext(ctx, "redis disabled via config")
		return infra, nil
	}
	if infra.redis, err = bootstrap.ConnectRedis(ctx, dbCfg); err != nil {
		return nil, fmt.Errorf("connect redis: %w", errors.Join(err, db.Close()))
	}
	return infra, nil
}

func (i *infrastructure) close(ctx context.Context, logger *slog.Logger) {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
	if err := i.db.Close(); err != nil {
		logger.ErrorContext(ctx, "close database failed", "error", err)
	}
}
