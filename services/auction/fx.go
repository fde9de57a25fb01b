package auction

import "go.uber.org/fx"

var Module = fx.Module("auction.module",
	fx.Provide(
		TimingFromConfig,
		NewRegistry,
		NewEngine,
		NewService,
	),
	fx.Invoke(Start),
)
