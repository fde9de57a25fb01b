package reputation

import "go.uber.org/fx"

var Module = fx.Module("reputation.module",
	fx.Provide(
		NewService,
	),
)
