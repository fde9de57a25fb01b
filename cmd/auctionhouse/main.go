package main

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"auctionhouse/internal/httpapi"
	"auctionhouse/pkg/config"
	"auctionhouse/pkg/db"
	"auctionhouse/pkg/gen"
	"auctionhouse/pkg/health"
	"auctionhouse/pkg/logger"
	"auctionhouse/pkg/redis"
	"auctionhouse/pkg/sequence"
	"auctionhouse/pkg/server"
	"auctionhouse/pkg/task"
	"auctionhouse/services/auction"
	"auctionhouse/services/blacklist"
	"auctionhouse/services/notify"
	"auctionhouse/services/reputation"
	"auctionhouse/services/settings"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		health.Module,
		fx.Provide(
			provideTracerProvider,
			provideMeterProvider,
		),
		settings.Module,
		reputation.Module,
		blacklist.Module,
		notify.Module,
		fx.Provide(
			func(s *reputation.Service) auction.ReputationTracker { return s },
			func(s *blacklist.Service) auction.Blacklist { return s },
			func(s *settings.Service) auction.SettingsSource { return s },
			func(g sequence.Generator) auction.LotSequence { return g },
		),
		auction.Module,
		fx.Invoke(migrate),
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

// migrate keeps the schema in step with the models. The scheduler resumes
// persisted auctions at startup, so tables must exist before it runs.
func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&auction.Auction{},
		&auction.Bid{},
		&auction.QueueEntry{},
		&auction.WatchlistEntry{},
		&auction.ArchiveEntry{},
		&settings.TenantSettings{},
		&reputation.Record{},
		&reputation.Event{},
		&blacklist.Entry{},
	)
}

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}
