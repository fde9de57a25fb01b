package httpapi

import (
	"net/http"

	"auctionhouse/pkg/config"
	"auctionhouse/pkg/health"
	"auctionhouse/services/auction"
	"auctionhouse/services/blacklist"
	"auctionhouse/services/reputation"
	"auctionhouse/services/settings"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(ProvideRouter),
)

type RouterParams struct {
	fx.In
	Config     *config.Config
	Auctions   *auction.Service
	Settings   *settings.Service
	Reputation *reputation.Service
	Blacklist  *blacklist.Service
	Health     health.HealthService
}

// ProvideRouter builds the gin engine all tenant-scoped routes hang off.
func ProvideRouter(p RouterParams) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	h := &Handler{
		auctions:   p.Auctions,
		settings:   p.Settings,
		reputation: p.Reputation,
		blacklist:  p.Blacklist,
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	tenant := r.Group("/v1/tenants/:tenant_id")
	{
		tenant.POST("/auctions", h.createAuction)
		tenant.GET("/auctions/current", h.getCurrentAuction)
		tenant.GET("/auctions/queue", h.getQueue)
		tenant.GET("/auctions/history", h.getHistory)
		tenant.GET("/auctions/:auction_id", h.getAuction)
		tenant.DELETE("/auctions/:auction_id", h.cancelAuction)
		tenant.POST("/auctions/:auction_id/payment", h.confirmPayment)
		tenant.POST("/auctions/:auction_id/watch", h.watchAuction)
		tenant.DELETE("/auctions/:auction_id/watch", h.unwatchAuction)

		tenant.POST("/bids", h.placeBid)

		tenant.GET("/users/:user_id/auctions", h.getUserAuctions)
		tenant.GET("/users/:user_id/reputation", h.getReputation)
		tenant.GET("/users/:user_id/reputation/history", h.getReputationHistory)

		tenant.GET("/settings", h.getSettings)
		tenant.PATCH("/settings", h.updateSetting)

		tenant.POST("/blacklist", h.addToBlacklist)
		tenant.DELETE("/blacklist/:user_id", h.removeFromBlacklist)
	}

	return r
}
