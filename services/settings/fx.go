package settings

import "go.uber.org/fx"

var Module = fx.Module("settings.module",
	fx.Provide(
		NewService,
	),
)
