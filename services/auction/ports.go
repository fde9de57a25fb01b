package auction

import (
	"context"
	"time"

	"auctionhouse/services/settings"
)

// Notifier is the sink for user- and channel-facing events. Every call is
// fire-and-forget: implementations must absorb delivery failures so a state
// transition is never blocked or failed by its notification.
type Notifier interface {
	NotifyStarted(ctx context.Context, a *Auction)
	NotifyOutbid(ctx context.Context, a *Auction, prevBidderID string, amount int64)
	NotifyExtended(ctx context.Context, a *Auction, until time.Time)
	NotifyEnded(ctx context.Context, a *Auction, winnerID string, amount int64)
	NotifyCompleted(ctx context.Context, a *Auction, winnerID string, amount int64, bonusPercent int)
	NotifyCancelled(ctx context.Context, a *Auction, reason string)
	NotifyWatchlist(ctx context.Context, event string, a *Auction)
}

// Watchlist event names passed to NotifyWatchlist.
const (
	WatchEventBid       = "bid"
	WatchEventEnded     = "ended"
	WatchEventCompleted = "completed"
)

// ReputationTracker is the slice of the reputation service the engine
// consumes.
type ReputationTracker interface {
	Increase(ctx context.Context, userID, reason string) error
	Decrease(ctx context.Context, userID, reason string) error
	EligibilityLimit(ctx context.Context, userID string) (int64, error)
	Bonus(ctx context.Context, userID string) (int, error)
}

// Blacklist is the tenant group-membership collaborator gating bidders and
// absorbing payment defaulters.
type Blacklist interface {
	Contains(ctx context.Context, tenantID, userID string) (bool, error)
	Add(ctx context.Context, tenantID, userID, reason string) error
}

// SettingsSource resolves per-tenant configuration.
type SettingsSource interface {
	Get(ctx context.Context, tenantID string) (*settings.TenantSettings, error)
}

// LotSequence assigns per-tenant lot numbers to new auctions.
type LotSequence interface {
	NextLotNumber(ctx context.Context, tenantID string) (string, error)
}
