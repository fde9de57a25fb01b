package blacklist

import "go.uber.org/fx"

var Module = fx.Module("blacklist.module",
	fx.Provide(
		NewService,
	),
)
