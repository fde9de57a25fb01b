package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auctionhouse/pkg/db/option"
	"auctionhouse/pkg/errutil"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// paymentWindow is the rendezvous between the settlement loop and
// ConfirmPayment. The loop closes nothing itself; confirmation closes ch,
// otherwise the window timer wins.
type paymentWindow struct {
	auctionID string
	userID    string
	ch        chan struct{}
}

// Scheduler drives the auction lifecycle for a single tenant. mu serializes
// every read-validate-write against the tenant's auction rows, so a bid, a
// countdown tick and an admin cancel never interleave mid-transition.
type Scheduler struct {
	tenantID string
	deps     schedulerDeps

	mu sync.Mutex

	// wake: a queued auction appeared or queue state changed while idle.
	// bidSignal: a bid landed on the active auction.
	// interrupt: the active auction was cancelled out from under the loop.
	// All buffered(1); senders never block.
	wake      chan struct{}
	bidSignal chan struct{}
	interrupt chan struct{}

	payMu   sync.Mutex
	pending *paymentWindow
}

func newScheduler(tenantID string, deps schedulerDeps) *Scheduler {
	return &Scheduler{
		tenantID:  tenantID,
		deps:      deps,
		wake:      make(chan struct{}, 1),
		bidSignal: make(chan struct{}, 1),
		interrupt: make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Scheduler) log() *zap.Logger {
	return zap.L().With(zap.String("tenant_id", s.tenantID))
}

// run is the scheduler loop: settle leftovers, drive the active auction,
// activate the queue head, then sleep until woken.
func (s *Scheduler) run(ctx context.Context) {
	s.log().Info("auction scheduler started")
	defer s.log().Info("auction scheduler stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		auc, err := s.nextAuction(ctx)
		if err != nil {
			s.log().Error("failed to load next auction", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.deps.timing.PollInterval):
			}
			continue
		}

		if auc == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}

		if auc.Status == StatusActive {
			if !s.countdown(ctx, auc.ID) {
				return
			}
		}
		if !s.settle(ctx, auc.ID) {
			return
		}
	}
}

// nextAuction picks the auction the loop should work on. Settlement left
// over from before a restart comes first, then a still-active auction, then
// the queue head.
func (s *Scheduler) nextAuction(ctx context.Context) (*Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, status := range []Status{StatusEnded, StatusActive} {
		auc, err := s.deps.auctions.FindOne(ctx, &Auction{TenantID: s.tenantID, Status: status})
		if err != nil {
			return nil, err
		}
		if auc != nil {
			return auc, nil
		}
	}

	return s.activateNext(ctx)
}

// activateNext promotes the oldest queued auction to active. Caller holds mu.
func (s *Scheduler) activateNext(ctx context.Context) (*Auction, error) {
	for {
		head, err := s.deps.queue.FindOne(ctx, &QueueEntry{TenantID: s.tenantID},
			option.WithSortBy(option.QuerySortBy{Field: "id", OrderBy: "ASC"}))
		if err != nil {
			return nil, err
		}
		if head == nil {
			return nil, nil
		}

		auc, err := s.deps.auctions.FindOne(ctx, &Auction{ID: head.AuctionID, TenantID: s.tenantID})
		if err != nil {
			return nil, err
		}
		if auc == nil || auc.Status != StatusQueued {
			// Stale entry, e.g. the auction was cancelled while queued.
			if err := s.deps.queue.Delete(ctx, &QueueEntry{ID: head.ID}); err != nil {
				return nil, err
			}
			continue
		}

		cfg, err := s.deps.settings.Get(ctx, s.tenantID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		end := now.Add(time.Duration(cfg.AuctionDuration) * time.Second)

		err = s.deps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.deps.auctions.WithTrx(tx).Update(ctx, auc.ID, map[string]any{
				"status":   StatusActive,
				"end_time": end,
			}); err != nil {
				return err
			}
			return s.deps.queue.WithTrx(tx).Delete(ctx, &QueueEntry{ID: head.ID})
		})
		if err != nil {
			return nil, err
		}

		auc.Status = StatusActive
		auc.EndTime = &end

		s.log().Info("auction activated",
			zap.String("auction_id", auc.ID),
			zap.Time("end_time", end))
		s.deps.notifier.NotifyStarted(ctx, auc)

		return auc, nil
	}
}

// countdown drives the active phase until the auction ends or disappears.
// Returns false only when ctx is done.
func (s *Scheduler) countdown(ctx context.Context, auctionID string) bool {
	ticker := time.NewTicker(s.deps.timing.PollInterval)
	defer ticker.Stop()

	for {
		done, err := s.tick(ctx, auctionID)
		if err != nil {
			s.log().Error("countdown tick failed",
				zap.String("auction_id", auctionID), zap.Error(err))
		}
		if done {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		case <-s.bidSignal:
		case <-s.interrupt:
		}
	}
}

// tick reloads the auction and either extends it, ends it, or leaves it
// running. Reloading from the database on every pass is what makes the loop
// survive restarts and concurrent bids.
func (s *Scheduler) tick(ctx context.Context, auctionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auc, err := s.deps.auctions.FindOne(ctx, &Auction{ID: auctionID, TenantID: s.tenantID})
	if err != nil {
		return false, err
	}
	if auc == nil || auc.Status != StatusActive || auc.EndTime == nil {
		return true, nil
	}

	now := time.Now().UTC()
	remaining := auc.EndTime.Sub(now)

	// A bid placed inside the closing window extends the deadline, once per
	// bid. Measured against the deadline rather than the poll moment, so the
	// outcome does not depend on tick timing. The extension is skipped when
	// the bumped deadline would still be in the past (stale state after a
	// long outage settles instead of extending).
	lateBid := auc.LastBidAt != nil &&
		!auc.LastBidAt.Before(auc.EndTime.Add(-s.deps.timing.ExtensionWindow)) &&
		(auc.ExtendedAt == nil || auc.LastBidAt.After(*auc.ExtendedAt))

	if lateBid && now.Before(auc.EndTime.Add(s.deps.timing.ExtensionBump)) {
		end := auc.EndTime.Add(s.deps.timing.ExtensionBump)
		if err := s.deps.auctions.Update(ctx, auc.ID, map[string]any{
			"end_time":    end,
			"extended_at": now,
		}); err != nil {
			return false, err
		}

		auc.EndTime = &end
		s.log().Info("auction extended",
			zap.String("auction_id", auc.ID),
			zap.Time("end_time", end))
		s.deps.notifier.NotifyExtended(ctx, auc, end)
		return false, nil
	}

	if remaining > 0 {
		return false, nil
	}

	if err := s.deps.auctions.Update(ctx, auc.ID, map[string]any{"status": StatusEnded}); err != nil {
		return false, err
	}
	s.log().Info("auction ended", zap.String("auction_id", auc.ID))
	return true, nil
}

// settle resolves an ended auction: announce the winner, wait for payment,
// fall back through remaining bidders on default, archive the outcome.
// Returns false only when ctx is done.
func (s *Scheduler) settle(ctx context.Context, auctionID string) bool {
	s.mu.Lock()
	auc, err := s.deps.auctions.FindOne(ctx, &Auction{ID: auctionID, TenantID: s.tenantID})
	if err != nil {
		s.mu.Unlock()
		s.log().Error("failed to load auction for settlement",
			zap.String("auction_id", auctionID), zap.Error(err))
		return true
	}
	if auc == nil || auc.Status != StatusEnded {
		s.mu.Unlock()
		return true
	}

	if auc.TopBidderID == "" {
		err := s.finalize(ctx, auc, StatusCancelled)
		s.mu.Unlock()
		if err != nil {
			s.log().Error("failed to cancel auction without bids",
				zap.String("auction_id", auc.ID), zap.Error(err))
			return true
		}
		s.deps.notifier.NotifyCancelled(ctx, auc, "no bids received")
		s.deps.notifier.NotifyWatchlist(ctx, WatchEventEnded, auc)
		return true
	}

	// WinnerID persists the settlement candidate so a restart mid-payment
	// re-announces the same bidder instead of the top one.
	winner, amount := auc.WinnerID, auc.WinnerAmount
	if winner == "" {
		winner, amount = auc.TopBidderID, auc.CurrentBid
		if err := s.deps.auctions.Update(ctx, auc.ID, map[string]any{
			"winner_id":     winner,
			"winner_amount": amount,
		}); err != nil {
			s.mu.Unlock()
			s.log().Error("failed to persist settlement candidate",
				zap.String("auction_id", auc.ID), zap.Error(err))
			return true
		}
	}
	creator := auc.CreatorID
	s.mu.Unlock()

	defaulted := map[string]bool{}
	for {
		s.log().Info("awaiting payment",
			zap.String("auction_id", auc.ID),
			zap.String("winner_id", winner),
			zap.Int64("amount", amount))

		// Open the window before announcing so a confirmation arriving
		// right after the announcement always finds it.
		win := s.openPaymentWindow(auc.ID, winner)
		s.deps.notifier.NotifyEnded(ctx, auc, winner, amount)

		confirmed, ok := s.awaitPayment(ctx, win)
		if !ok {
			return false
		}

		if confirmed {
			// Payout bonus reflects the tier the winner held at
			// settlement, before the confirmation credit lands.
			bonus, err := s.deps.reputation.Bonus(ctx, winner)
			if err != nil {
				s.log().Warn("failed to resolve winner payout bonus",
					zap.String("user_id", winner), zap.Error(err))
				bonus = 0
			}

			s.mu.Lock()
			cur, err := s.deps.auctions.FindOne(ctx, &Auction{ID: auc.ID, TenantID: s.tenantID})
			if err != nil || cur == nil || cur.Status != StatusEnded {
				s.mu.Unlock()
				return true
			}
			err = s.finalize(ctx, cur, StatusCompleted)
			s.mu.Unlock()
			if err != nil {
				s.log().Error("failed to complete auction",
					zap.String("auction_id", auc.ID), zap.Error(err))
				return true
			}

			if err := s.deps.reputation.Increase(ctx, winner, "auction payment confirmed"); err != nil {
				s.log().Warn("failed to credit winner reputation",
					zap.String("user_id", winner), zap.Error(err))
			}
			if err := s.deps.reputation.Increase(ctx, creator, "auction completed"); err != nil {
				s.log().Warn("failed to credit creator reputation",
					zap.String("user_id", creator), zap.Error(err))
			}

			cur.Status = StatusCompleted
			s.deps.notifier.NotifyCompleted(ctx, cur, winner, amount, bonus)
			s.deps.notifier.NotifyWatchlist(ctx, WatchEventCompleted, cur)
			s.log().Info("auction completed",
				zap.String("auction_id", auc.ID),
				zap.String("winner_id", winner))
			return true
		}

		s.log().Info("payment window expired",
			zap.String("auction_id", auc.ID),
			zap.String("winner_id", winner))

		if err := s.deps.reputation.Decrease(ctx, winner, "auction payment default"); err != nil {
			s.log().Warn("failed to debit defaulter reputation",
				zap.String("user_id", winner), zap.Error(err))
		}
		if err := s.deps.blacklist.Add(ctx, s.tenantID, winner, "auction payment default"); err != nil {
			s.log().Warn("failed to blacklist defaulter",
				zap.String("user_id", winner), zap.Error(err))
		}
		defaulted[winner] = true

		next, err := s.fallbackBidder(ctx, auc.ID, defaulted)
		if err != nil {
			s.log().Error("failed to look up fallback bidder",
				zap.String("auction_id", auc.ID), zap.Error(err))
			return true
		}
		if next == nil {
			s.mu.Lock()
			cur, err := s.deps.auctions.FindOne(ctx, &Auction{ID: auc.ID, TenantID: s.tenantID})
			if err != nil || cur == nil || cur.Status != StatusEnded {
				s.mu.Unlock()
				return true
			}
			err = s.finalize(ctx, cur, StatusCancelled)
			s.mu.Unlock()
			if err != nil {
				s.log().Error("failed to cancel auction after defaults",
					zap.String("auction_id", auc.ID), zap.Error(err))
				return true
			}
			s.deps.notifier.NotifyCancelled(ctx, auc, "no remaining bidders after payment defaults")
			s.deps.notifier.NotifyWatchlist(ctx, WatchEventEnded, auc)
			return true
		}

		winner, amount = next.BidderID, next.Amount
		if err := s.deps.auctions.Update(ctx, auc.ID, map[string]any{
			"winner_id":     winner,
			"winner_amount": amount,
		}); err != nil {
			s.log().Error("failed to persist fallback candidate",
				zap.String("auction_id", auc.ID), zap.Error(err))
			return true
		}
		s.log().Info("falling back to next bidder",
			zap.String("auction_id", auc.ID),
			zap.String("winner_id", winner),
			zap.Int64("amount", amount))
	}
}

func (s *Scheduler) openPaymentWindow(auctionID, userID string) *paymentWindow {
	win := &paymentWindow{auctionID: auctionID, userID: userID, ch: make(chan struct{})}
	s.payMu.Lock()
	s.pending = win
	s.payMu.Unlock()
	return win
}

// awaitPayment blocks until the candidate confirms or the window elapses.
// The second return is false when ctx was cancelled.
func (s *Scheduler) awaitPayment(ctx context.Context, win *paymentWindow) (bool, bool) {
	defer func() {
		s.payMu.Lock()
		if s.pending == win {
			s.pending = nil
		}
		s.payMu.Unlock()
	}()

	timer := time.NewTimer(s.deps.timing.PaymentWindow)
	defer timer.Stop()

	select {
	case <-win.ch:
		return true, true
	case <-timer.C:
		return false, true
	case <-ctx.Done():
		return false, false
	}
}

// ConfirmPayment resolves an open payment window. The auction and user must
// match the announced candidate exactly.
func (s *Scheduler) ConfirmPayment(ctx context.Context, auctionID, userID string) error {
	s.payMu.Lock()
	defer s.payMu.Unlock()

	win := s.pending
	if win == nil || win.auctionID != auctionID {
		return errutil.InvalidAuctionID("no payment is awaited for this auction")
	}
	if win.userID != userID {
		return errutil.InvalidAuctionData(fmt.Sprintf("payment for auction %s is awaited from another user", auctionID))
	}

	s.pending = nil
	close(win.ch)

	s.log().Info("payment confirmed",
		zap.String("auction_id", auctionID),
		zap.String("user_id", userID))
	return nil
}

// fallbackBidder returns the most recent bid whose bidder has not defaulted
// in this settlement. With monotonically increasing bids that is the
// second-highest distinct bidder, then the third, and so on.
func (s *Scheduler) fallbackBidder(ctx context.Context, auctionID string, defaulted map[string]bool) (*Bid, error) {
	bids, err := s.deps.bids.Find(ctx, &Bid{AuctionID: auctionID},
		option.WithSortBy(option.QuerySortBy{Field: "created_at", OrderBy: "DESC"}))
	if err != nil {
		return nil, err
	}
	for _, b := range bids {
		if !defaulted[b.BidderID] {
			return b, nil
		}
	}
	return nil, nil
}

// finalize moves the auction to the archive in one transaction: snapshot the
// record and its bid history, then delete the live rows. Caller holds mu.
func (s *Scheduler) finalize(ctx context.Context, auc *Auction, final Status) error {
	bids, err := s.deps.bids.Find(ctx, &Bid{AuctionID: auc.ID},
		option.WithSortBy(option.QuerySortBy{Field: "created_at", OrderBy: "ASC"}))
	if err != nil {
		return err
	}

	auc.Status = final
	entry, err := newArchiveEntry(auc.ID, auc, bids, final)
	if err != nil {
		return err
	}

	return s.deps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deps.archive.WithTrx(tx).Create(ctx, entry); err != nil {
			return err
		}
		if err := s.deps.bids.WithTrx(tx).Delete(ctx, &Bid{AuctionID: auc.ID}); err != nil {
			return err
		}
		if err := s.deps.queue.WithTrx(tx).Delete(ctx, &QueueEntry{TenantID: s.tenantID, AuctionID: auc.ID}); err != nil {
			return err
		}
		return s.deps.auctions.WithTrx(tx).Delete(ctx, &Auction{ID: auc.ID})
	})
}

// Enqueue moves a freshly created auction from pending into the queue and
// wakes the loop.
func (s *Scheduler) Enqueue(ctx context.Context, auctionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auc, err := s.deps.auctions.FindOne(ctx, &Auction{ID: auctionID, TenantID: s.tenantID})
	if err != nil {
		return errutil.Internal("failed to load auction", errutil.WithErr(err))
	}
	if auc == nil {
		return errutil.AuctionNotFound(fmt.Sprintf("auction %s not found", auctionID))
	}
	if auc.Status != StatusPending {
		return errutil.InvalidAuctionData(fmt.Sprintf("auction %s is %s, not pending", auctionID, auc.Status))
	}

	err = s.deps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deps.auctions.WithTrx(tx).Update(ctx, auc.ID, map[string]any{"status": StatusQueued}); err != nil {
			return err
		}
		return s.deps.queue.WithTrx(tx).Create(ctx, &QueueEntry{
			TenantID:  s.tenantID,
			AuctionID: auc.ID,
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return errutil.Internal("failed to enqueue auction", errutil.WithErr(err))
	}

	signal(s.wake)
	return nil
}

// Cancel terminates a pending, queued or active auction. Ended auctions are
// already settling and cannot be pulled back.
func (s *Scheduler) Cancel(ctx context.Context, auctionID, reason string) (*Auction, error) {
	s.mu.Lock()
	auc, err := s.deps.auctions.FindOne(ctx, &Auction{ID: auctionID, TenantID: s.tenantID})
	if err != nil {
		s.mu.Unlock()
		return nil, errutil.Internal("failed to load auction", errutil.WithErr(err))
	}
	if auc == nil {
		s.mu.Unlock()
		return nil, errutil.AuctionNotFound(fmt.Sprintf("auction %s not found", auctionID))
	}

	switch auc.Status {
	case StatusPending, StatusQueued, StatusActive:
	default:
		s.mu.Unlock()
		return nil, errutil.InvalidAuctionData(fmt.Sprintf("auction %s is %s and can no longer be cancelled", auctionID, auc.Status))
	}

	wasActive := auc.Status == StatusActive
	if err := s.finalize(ctx, auc, StatusCancelled); err != nil {
		s.mu.Unlock()
		return nil, errutil.Internal("failed to archive cancelled auction", errutil.WithErr(err))
	}
	s.mu.Unlock()

	if reason == "" {
		reason = "cancelled by administrator"
	}
	s.deps.notifier.NotifyCancelled(ctx, auc, reason)
	s.deps.notifier.NotifyWatchlist(ctx, WatchEventEnded, auc)

	if wasActive {
		signal(s.interrupt)
	}
	signal(s.wake)

	s.log().Info("auction cancelled",
		zap.String("auction_id", auctionID),
		zap.String("reason", reason))
	return auc, nil
}
