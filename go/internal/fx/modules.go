package fx

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"github.com/mcdev12/beatmeat/go/internal/clicks"
	"github.com/mcdev12/beatmeat/go/internal/clicks/db"
	"github.com/mcdev12/beatmeat/go/internal/config"
	"github.com/mcdev12/beatmeat/go/internal/database"
	"github.com/mcdev12/beatmeat/go/internal/events"
	"github.com/mcdev12/beatmeat/go/internal/gateway"
	"github.com/mcdev12/beatmeat/go/internal/logger"
)

const connectTimeout = 15 * time.Second

func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logger.Setup(cfg.LogLevel, cfg.LogFormat)
}

func ProvideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

// ProvideDatabase opens the store and applies migrations. The pool is
// closed when the app stops.
func ProvideDatabase(lc fx.Lifecycle, cfg *config.Config, _ zerolog.Logger) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	sqlDB, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sqlDB.Close()
		},
	})
	return sqlDB, nil
}

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

func ProvideApp(repo *clicks.Repository, clock clockwork.Clock) *clicks.App {
	return clicks.NewApp(repo, clock)
}

// ProvidePublisher connects to NATS when NATS_URL is set. Events are
// optional, so a failed connection degrades to a no-op publisher.
func ProvidePublisher(lc fx.Lifecycle, cfg *config.Config) events.Publisher {
	if cfg.NATSURL == "" {
		return events.NoopPublisher{}
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL

	pub, err := events.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Warn().Err(err).Str("nats_url", cfg.NATSURL).Msg("event publishing disabled")
		return events.NoopPublisher{}
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	return pub
}

// ProvideGateway builds the gateway and ties its scheduler to the app
// lifecycle.
func ProvideGateway(lc fx.Lifecycle, cfg *config.Config, app *clicks.App, publisher events.Publisher, sqlDB *sql.DB, clock clockwork.Clock) *gateway.Service {
	gwCfg := gateway.DefaultConfig()
	gwCfg.BroadcastInterval = cfg.BroadcastInterval

	svc := gateway.NewService(gwCfg, app, publisher, sqlDB, clock)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			svc.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return svc.Stop(ctx)
		},
	})
	return svc
}

var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideClock),
	fx.Provide(ProvideDatabase),
	fx.Provide(ProvideQueries),
	// repos
	fx.Provide(clicks.NewRepository),
	// app
	fx.Provide(ProvideApp),
	fx.Provide(ProvidePublisher),
	// gateway
	fx.Provide(ProvideGateway),
)
