package main

import (
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"auctionhouse/pkg/config"
	"auctionhouse/pkg/logger"
	"auctionhouse/pkg/task"
	"auctionhouse/services/notify"
)

// notifyworker consumes the notification queue and delivers the events the
// engine enqueued.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		task.Server,
		fx.Invoke(func(mux *asynq.ServeMux) {
			notify.RegisterHandlers(mux)
		}),
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
