package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/datalake-etl/internal/common"
	repo "github.com/joseph-ayodele/datalake-etl/internal/repository"
)

// ConnectDB opens the configured database and creates any missing sink tables.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, error) {
	db, err := repo.Open(ctx, repo.ConfigFrom(cfg), logger)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx, db.Driver); err != nil {
		logger.Error("failed to migrate database", "error", err)
		repo.Close(db, logger)
		return nil, err
	}
	logger.Info("database schema up to date", "dialect", db.Dialect())
	return db, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repo.DB, logger *slog.Logger, timeout time.Duration) error {
	if err := repo.HealthCheck(ctx, db, timeout, logger); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	return nil
}

// CloseDB closes the database connections gracefully
func CloseDB(db *repo.DB, logger *slog.Logger) {
	repo.Close(db, logger)
}
