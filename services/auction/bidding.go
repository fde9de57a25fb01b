package auction

import (
	"context"
	"fmt"
	"time"

	"auctionhouse/pkg/errutil"
	"auctionhouse/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine validates and records bids. All checks and the write happen under
// the tenant scheduler's lock, so two concurrent bids of the same amount can
// never both pass validation.
type Engine struct {
	db       *gorm.DB
	node     *snowflake.Node
	registry *Registry

	reputation ReputationTracker
	blacklist  Blacklist
	notifier   Notifier

	auctions repository.Repository[Auction]
	bids     repository.Repository[Bid]
}

func NewEngine(db *gorm.DB, node *snowflake.Node, registry *Registry, reputation ReputationTracker, blacklist Blacklist, notifier Notifier) *Engine {
	return &Engine{
		db:         db,
		node:       node,
		registry:   registry,
		reputation: reputation,
		blacklist:  blacklist,
		notifier:   notifier,
		auctions:   repository.ProvideStore[Auction](db),
		bids:       repository.ProvideStore[Bid](db),
	}
}

// PlaceBid records a bid on the tenant's active auction. Checks run in a
// fixed order: active auction exists, amount beats the current state, bidder
// is not blacklisted, bidder's reputation tier covers the price level.
func (e *Engine) PlaceBid(ctx context.Context, tenantID, userID string, amount int64) (*Bid, error) {
	log := zap.L().With(
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
	)

	sched := e.registry.ForTenant(tenantID)
	sched.mu.Lock()
	defer sched.mu.Unlock()

	auc, err := e.auctions.FindOne(ctx, &Auction{TenantID: tenantID, Status: StatusActive})
	if err != nil {
		return nil, errutil.Internal("failed to load active auction", errutil.WithErr(err))
	}
	if auc == nil {
		return nil, errutil.NoActiveAuction("no auction is currently running")
	}

	// The first bid must meet the minimum; later bids must strictly beat
	// the standing one. Equal re-bids by the top bidder are rejected too.
	if auc.TopBidderID == "" {
		if amount < auc.MinBid {
			return nil, errutil.BidTooLow(fmt.Sprintf("bid must be at least %d", auc.MinBid))
		}
	} else if amount <= auc.CurrentBid {
		return nil, errutil.BidTooLow(fmt.Sprintf("bid must exceed the current bid of %d", auc.CurrentBid))
	}

	listed, err := e.blacklist.Contains(ctx, tenantID, userID)
	if err != nil {
		return nil, errutil.Internal("failed to check blacklist", errutil.WithErr(err))
	}
	if listed {
		return nil, errutil.Blacklisted("user is not allowed to bid")
	}

	requirement := auc.CurrentBid
	if auc.TopBidderID == "" {
		requirement = auc.MinBid
	}
	limit, err := e.reputation.EligibilityLimit(ctx, userID)
	if err != nil {
		return nil, errutil.Internal("failed to resolve eligibility limit", errutil.WithErr(err))
	}
	if limit < requirement {
		return nil, errutil.ReputationTooLow(fmt.Sprintf("auctions at this price level require a higher reputation tier (limit %d)", limit))
	}

	now := time.Now().UTC()
	bid := &Bid{
		ID:        e.node.Generate().String(),
		AuctionID: auc.ID,
		TenantID:  tenantID,
		BidderID:  userID,
		Amount:    amount,
		CreatedAt: now,
	}

	prev := auc.TopBidderID
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.bids.WithTrx(tx).Create(ctx, bid); err != nil {
			return err
		}
		return tx.Model(&Auction{}).
			Where("id = ? AND status = ?", auc.ID, StatusActive).
			Updates(map[string]any{
				"current_bid":   amount,
				"top_bidder_id": userID,
				"last_bid_at":   now,
			}).Error
	})
	if err != nil {
		return nil, errutil.Internal("failed to record bid", errutil.WithErr(err))
	}

	auc.CurrentBid = amount
	auc.TopBidderID = userID
	auc.LastBidAt = &now

	log.Info("bid accepted", zap.String("auction_id", auc.ID), zap.String("bid_id", bid.ID))

	if prev != "" && prev != userID {
		e.notifier.NotifyOutbid(ctx, auc, prev, amount)
	}
	e.notifier.NotifyWatchlist(ctx, WatchEventBid, auc)

	signal(sched.bidSignal)
	return bid, nil
}
