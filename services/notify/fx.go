package notify

import (
	"auctionhouse/services/auction"

	"go.uber.org/fx"
)

var Module = fx.Module("notify.module",
	fx.Provide(
		NewService,
		func(s *Service) auction.Notifier { return s },
	),
)
