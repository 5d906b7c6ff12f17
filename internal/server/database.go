package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/fiscalops/apbots/internal/common"
	repo "github.com/fiscalops/apbots/internal/repository"
)

// ConnectDB opens the bookkeeping database and applies migrations.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, error) {
	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Driver,
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, common.WrapError(err, "migrate")
	}
	logger.Info("successfully connected to database", "driver", cfg.Driver)
	return db, nil
}

// ConnectRegistry opens the PO registry. An empty registry DSN reuses
// the bookkeeping database.
func ConnectRegistry(ctx context.Context, cfg *common.Config, bookkeeping *repo.DB, logger *slog.Logger) (repo.PORegistry, func(), error) {
	if cfg.Registry.DSN == "" {
		if cfg.Database.Driver == "sqlite" {
			if err := bookkeeping.MigrateRegistry(ctx); err != nil {
				return nil, nil, common.WrapError(err, "migrate registry")
			}
		}
		return repo.NewPORegistry(bookkeeping, cfg.Registry.BusinessUnit, logger), func() {}, nil
	}
	db, err := repo.Open(ctx, repo.Config{
		Driver:      cfg.Registry.Driver,
		DSN:         cfg.Registry.DSN,
		MaxConns:    cfg.Database.MaxConns,
		DialTimeout: cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to po registry", "error", err)
		return nil, nil, err
	}
	return repo.NewPORegistry(db, cfg.Registry.BusinessUnit, logger), db.Close, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repo.DB, logger *slog.Logger, timeout time.Duration) error {
	logger.Debug("pinging database")
	if err := db.HealthCheck(ctx, timeout); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
