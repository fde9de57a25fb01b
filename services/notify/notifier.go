package notify

import (
	"context"
	"encoding/json"
	"time"

	"auctionhouse/pkg/repository"
	"auctionhouse/pkg/task"
	"auctionhouse/services/auction"
	"auctionhouse/services/settings"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type settingsSource interface {
	Get(ctx context.Context, tenantID string) (*settings.TenantSettings, error)
}

// Service turns auction lifecycle events into asynq delivery tasks. Every
// method absorbs its own failures: a notification that cannot be enqueued is
// logged and dropped, never surfaced to the state machine.
type Service struct {
	enqueuer task.Enqueuer
	settings settingsSource

	watchlist repository.Repository[auction.WatchlistEntry]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Enqueuer task.Enqueuer
	Settings *settings.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		enqueuer:  p.Enqueuer,
		settings:  p.Settings,
		watchlist: repository.ProvideStore[auction.WatchlistEntry](p.DB),
	}
}

var _ auction.Notifier = (*Service)(nil)

func (s *Service) payload(ctx context.Context, a *auction.Auction) Payload {
	p := Payload{
		TenantID:   a.TenantID,
		AuctionID:  a.ID,
		ItemName:   a.ItemName,
		LotNumber:  a.LotNumber,
		ChannelRef: a.ChannelRef,
		MessageRef: a.MessageRef,
		EndTime:    a.EndTime,
	}
	if p.ChannelRef == "" {
		if cfg, err := s.settings.Get(ctx, a.TenantID); err == nil {
			p.ChannelRef = cfg.AuctionChannelRef
		}
	}
	return p
}

func (s *Service) enqueue(typename string, p Payload) {
	body, err := json.Marshal(p)
	if err != nil {
		zap.L().Error("failed to marshal notification payload",
			zap.String("type", typename), zap.Error(err))
		return
	}
	if _, err := s.enqueuer.Enqueue(asynq.NewTask(typename, body), asynq.MaxRetry(3)); err != nil {
		zap.L().Error("failed to enqueue notification",
			zap.String("type", typename),
			zap.String("auction_id", p.AuctionID),
			zap.Error(err))
	}
}

func (s *Service) NotifyStarted(ctx context.Context, a *auction.Auction) {
	s.enqueue(TypeAuctionStarted, s.payload(ctx, a))
}

func (s *Service) NotifyOutbid(ctx context.Context, a *auction.Auction, prevBidderID string, amount int64) {
	p := s.payload(ctx, a)
	p.UserID = prevBidderID
	p.Amount = amount
	s.enqueue(TypeBidderOutbid, p)
}

func (s *Service) NotifyExtended(ctx context.Context, a *auction.Auction, until time.Time) {
	p := s.payload(ctx, a)
	p.EndTime = &until
	s.enqueue(TypeAuctionExtended, p)
}

func (s *Service) NotifyEnded(ctx context.Context, a *auction.Auction, winnerID string, amount int64) {
	p := s.payload(ctx, a)
	p.UserID = winnerID
	p.Amount = amount
	s.enqueue(TypeAuctionEnded, p)
}

// NotifyCompleted announces a confirmed sale. The payout and audit copies
// are addressed through the tenant's payout and log refs when configured.
func (s *Service) NotifyCompleted(ctx context.Context, a *auction.Auction, winnerID string, amount int64, bonusPercent int) {
	p := s.payload(ctx, a)
	p.UserID = winnerID
	p.Amount = amount
	p.BonusPercent = bonusPercent
	if cfg, err := s.settings.Get(ctx, a.TenantID); err == nil {
		p.LogChannelRef = cfg.LogChannelRef
		p.PayoutRef = cfg.PayoutRef
	}
	s.enqueue(TypeAuctionCompleted, p)
}

func (s *Service) NotifyCancelled(ctx context.Context, a *auction.Auction, reason string) {
	p := s.payload(ctx, a)
	p.Reason = reason
	s.enqueue(TypeAuctionCancelled, p)
}

// NotifyWatchlist fans one task out per watcher. A failure for one watcher
// never blocks the others.
func (s *Service) NotifyWatchlist(ctx context.Context, event string, a *auction.Auction) {
	watchers, err := s.watchlist.Find(ctx, &auction.WatchlistEntry{TenantID: a.TenantID, AuctionID: a.ID})
	if err != nil {
		zap.L().Error("failed to load watchlist",
			zap.String("auction_id", a.ID), zap.Error(err))
		return
	}
	if len(watchers) == 0 {
		return
	}

	base := s.payload(ctx, a)
	base.Event = event

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, w := range watchers {
		p := base
		p.UserID = w.UserID
		g.Go(func() error {
			s.enqueue(TypeWatchlistEvent, p)
			return nil
		})
	}
	// enqueue never returns an error; Wait just joins the goroutines.
	_ = g.Wait()
}
