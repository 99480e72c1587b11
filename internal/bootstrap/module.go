package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"medledger/internal/bootstrap/config"
	"medledger/internal/bootstrap/database"
	"medledger/internal/bootstrap/logging"
	"medledger/internal/crypto/seal"
	"medledger/internal/domain/canonical"
	eventsinfra "medledger/internal/infrastructure/events"
	levelledger "medledger/internal/infrastructure/ledger/leveldb"
	sqliterepo "medledger/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "medledger/internal/infrastructure/persistence/sqlite/uow"
	"medledger/internal/ports"
	"medledger/internal/usecase/integrity"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideLedgerPlatform),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			levelledger.NewClient,
			fx.As(new(ports.Ledger)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewRecordMapRepository,
			fx.As(new(ports.RecordMapRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewAuditRepository,
			fx.As(new(ports.AuditRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(providePublisher),
	fx.Provide(provideProfile),
	fx.Provide(provideSealer),
	fx.Provide(integrity.NewService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideLedgerPlatform(lc fx.Lifecycle, cfg config.Config) (*levelledger.Platform, error) {
	platform, err := levelledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return platform.Close()
		},
	})

	return platform, nil
}

func providePublisher(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.EventPublisher, error) {
	if cfg.Events.NATSURL == "" {
		return eventsinfra.LogPublisher{}, nil
	}

	publisher, err := eventsinfra.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
	if err != nil {
		// Events are best-effort; a missing broker must not block startup.
		logging.Warn(ctx, "nats unavailable, falling back to log publisher", slog.Any("err", err))
		return eventsinfra.LogPublisher{}, nil
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			publisher.Close()
			return nil
		},
	})

	return publisher, nil
}

func provideProfile(cfg config.Config) (canonical.Profile, error) {
	if cfg.HashProfile.Path == "" {
		return canonical.DefaultProfile(), nil
	}
	return canonical.LoadProfile(cfg.HashProfile.Path)
}

func provideSealer(cfg config.Config) (*seal.Sealer, error) {
	if cfg.Encryption.Key == "" {
		return nil, nil
	}
	return seal.New(cfg.Encryption.Key)
}

func provideApp(cfg config.Config, db *gorm.DB, platform *levelledger.Platform) *App {
	return &App{
		Config: cfg,
		DB:     db,
		Ledger: platform,
	}
}
