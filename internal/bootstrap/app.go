package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"medledger/internal/bootstrap/config"
	"medledger/internal/bootstrap/database"
	"medledger/internal/bootstrap/logging"
	"medledger/internal/errs"
	levelledger "medledger/internal/infrastructure/ledger/leveldb"
	"medledger/internal/infrastructure/persistence/sqlite/model"
)

type App struct {
	Config config.Config
	DB     *gorm.DB
	Ledger *levelledger.Platform
}

func New(ctx context.Context, configFile string) (*App, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "loading application config", slog.String("config_file", configFile))

	cfg, err := config.Load(logCtx, configFile)
	if err != nil {
		return nil, errs.Wrap(err, "load config")
	}

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, errs.Wrap(err, "open database")
	}

	platform, err := levelledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, errs.Wrap(err, "open ledger store")
	}

	logging.Info(logCtx, "application bootstrap completed",
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("ledger_path", cfg.Ledger.Path),
	)

	return &App{
		Config: cfg,
		DB:     db,
		Ledger: platform,
	}, nil
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(
		&model.RecordMap{},
		&model.LedgerAuditLog{},
	); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			return errs.Wrap(err, "close ledger store")
		}
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}

	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "database connection closed")
	return nil
}
