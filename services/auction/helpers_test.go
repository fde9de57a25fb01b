package auction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auctionhouse/services/settings"
	"auctionhouse/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type endedEvent struct {
	AuctionID string
	WinnerID  string
	Amount    int64
}

type extendedEvent struct {
	AuctionID string
	Until     time.Time
}

type completedEvent struct {
	AuctionID    string
	WinnerID     string
	Amount       int64
	BonusPercent int
}

type fakeNotifier struct {
	mu        sync.Mutex
	started   chan string
	extended  chan extendedEvent
	ended     chan endedEvent
	completed chan completedEvent
	cancelled chan string
	outbid    []string
	watch     []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		started:   make(chan string, 16),
		extended:  make(chan extendedEvent, 16),
		ended:     make(chan endedEvent, 16),
		completed: make(chan completedEvent, 16),
		cancelled: make(chan string, 16),
	}
}

func (f *fakeNotifier) NotifyStarted(_ context.Context, a *Auction) {
	f.started <- a.ID
}

func (f *fakeNotifier) NotifyOutbid(_ context.Context, a *Auction, prevBidderID string, _ int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbid = append(f.outbid, prevBidderID)
}

func (f *fakeNotifier) NotifyExtended(_ context.Context, a *Auction, until time.Time) {
	f.extended <- extendedEvent{AuctionID: a.ID, Until: until}
}

func (f *fakeNotifier) NotifyEnded(_ context.Context, a *Auction, winnerID string, amount int64) {
	f.ended <- endedEvent{AuctionID: a.ID, WinnerID: winnerID, Amount: amount}
}

func (f *fakeNotifier) NotifyCompleted(_ context.Context, a *Auction, winnerID string, amount int64, bonusPercent int) {
	f.completed <- completedEvent{AuctionID: a.ID, WinnerID: winnerID, Amount: amount, BonusPercent: bonusPercent}
}

func (f *fakeNotifier) NotifyCancelled(_ context.Context, a *Auction, _ string) {
	f.cancelled <- a.ID
}

func (f *fakeNotifier) NotifyWatchlist(_ context.Context, event string, a *Auction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watch = append(f.watch, event+":"+a.ID)
}

func (f *fakeNotifier) outbidUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.outbid...)
}

type fakeReputation struct {
	mu      sync.Mutex
	scores  map[string]int
	limits  map[string]int64
	bonuses map[string]int
}

func newFakeReputation() *fakeReputation {
	return &fakeReputation{scores: map[string]int{}, limits: map[string]int64{}, bonuses: map[string]int{}}
}

func (f *fakeReputation) Increase(_ context.Context, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[userID]++
	return nil
}

func (f *fakeReputation) Decrease(_ context.Context, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[userID]--
	return nil
}

func (f *fakeReputation) EligibilityLimit(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit, ok := f.limits[userID]; ok {
		return limit, nil
	}
	return math.MaxInt64, nil
}

func (f *fakeReputation) Bonus(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bonuses[userID], nil
}

func (f *fakeReputation) setBonus(userID string, percent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bonuses[userID] = percent
}

func (f *fakeReputation) setLimit(userID string, limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits[userID] = limit
}

func (f *fakeReputation) score(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scores[userID]
}

type fakeBlacklist struct {
	mu      sync.Mutex
	members map[string]bool
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{members: map[string]bool{}}
}

func (f *fakeBlacklist) Contains(_ context.Context, tenantID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[tenantID+"/"+userID], nil
}

func (f *fakeBlacklist) Add(_ context.Context, tenantID, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[tenantID+"/"+userID] = true
	return nil
}

type fakeSettings struct {
	durationSeconds int
}

func (f *fakeSettings) Get(_ context.Context, tenantID string) (*settings.TenantSettings, error) {
	return &settings.TenantSettings{
		TenantID:          tenantID,
		AuctionDuration:   f.durationSeconds,
		MaxActiveAuctions: 1,
	}, nil
}

type fakeSequence struct {
	n int64
}

func (f *fakeSequence) NextLotNumber(_ context.Context, _ string) (string, error) {
	return fmt.Sprintf("LOT-%05d", atomic.AddInt64(&f.n, 1)), nil
}

type env struct {
	t        *testing.T
	db       *gorm.DB
	node     *snowflake.Node
	registry *Registry
	engine   *Engine
	svc      *Service
	notifier *fakeNotifier
	rep      *fakeReputation
	bl       *fakeBlacklist
}

// newEnv builds a full engine against an in-memory database. The auction
// duration is in whole seconds; tests that need an auction to end use
// forceEnd instead of waiting it out.
func newEnv(t *testing.T, timing Timing, durationSeconds int) *env {
	t.Helper()

	db := testutil.NewTestDB(t, &Auction{}, &Bid{}, &QueueEntry{}, &WatchlistEntry{}, &ArchiveEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	notifier := newFakeNotifier()
	rep := newFakeReputation()
	bl := newFakeBlacklist()

	registry := NewRegistry(RegistryParams{
		DB:         db,
		Timing:     timing,
		Settings:   &fakeSettings{durationSeconds: durationSeconds},
		Reputation: rep,
		Blacklist:  bl,
		Notifier:   notifier,
	})
	t.Cleanup(registry.Stop)

	engine := NewEngine(db, node, registry, rep, bl, notifier)
	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Registry: registry,
		Engine:   engine,
		Sequence: &fakeSequence{},
		Notifier: notifier,
	})

	return &env{
		t:        t,
		db:       db,
		node:     node,
		registry: registry,
		engine:   engine,
		svc:      svc,
		notifier: notifier,
		rep:      rep,
		bl:       bl,
	}
}

func fastTiming() Timing {
	return Timing{
		PollInterval:    5 * time.Millisecond,
		ExtensionWindow: 300 * time.Millisecond,
		ExtensionBump:   600 * time.Millisecond,
		PaymentWindow:   5 * time.Second,
	}
}

func (e *env) create(tenantID, creatorID string, minBid int64) *Auction {
	e.t.Helper()
	auc, err := e.svc.CreateAuction(context.Background(), tenantID, CreateAuctionInput{
		CreatorID: creatorID,
		ItemName:  "Dragon Scale",
		Quantity:  3,
		MinBid:    minBid,
	})
	require.NoError(e.t, err)
	return auc
}

// createAndStart enqueues an auction and waits for its activation.
func (e *env) createAndStart(tenantID, creatorID string, minBid int64) *Auction {
	e.t.Helper()
	auc := e.create(tenantID, creatorID, minBid)
	require.Equal(e.t, auc.ID, recv(e.t, e.notifier.started, "auction start"))
	return auc
}

// forceEnd pushes the deadline far enough into the past that the next tick
// ends the auction rather than extending it, then pokes the loop.
func (e *env) forceEnd(tenantID, auctionID string) {
	e.t.Helper()
	timing := e.registry.deps.timing
	past := time.Now().UTC().Add(-(timing.ExtensionWindow + timing.ExtensionBump + time.Second))
	require.NoError(e.t, e.db.Model(&Auction{}).Where("id = ?", auctionID).
		Update("end_time", past).Error)
	signal(e.registry.ForTenant(tenantID).bidSignal)
}

// insertActive seeds an already-running auction directly, bypassing the
// queue, for bid validation tests.
func (e *env) insertActive(tenantID, creatorID string, minBid int64) *Auction {
	e.t.Helper()
	now := time.Now().UTC()
	end := now.Add(time.Hour)
	auc := &Auction{
		ID:        e.node.Generate().String(),
		TenantID:  tenantID,
		CreatedAt: now,
		CreatorID: creatorID,
		ItemName:  "Dragon Scale",
		Quantity:  1,
		MinBid:    minBid,
		Status:    StatusActive,
		EndTime:   &end,
	}
	require.NoError(e.t, e.db.Create(auc).Error)
	return auc
}

func (e *env) loadAuction(id string) *Auction {
	e.t.Helper()
	var auc Auction
	err := e.db.Where("id = ?", id).First(&auc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(e.t, err)
	return &auc
}

// waitArchived polls until the auction lands in the archive.
func (e *env) waitArchived(auctionID string) *ArchiveEntry {
	e.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var entry ArchiveEntry
		err := e.db.Where("auction_id = ?", auctionID).First(&entry).Error
		if err == nil {
			return &entry
		}
		require.ErrorIs(e.t, err, gorm.ErrRecordNotFound)
		time.Sleep(5 * time.Millisecond)
	}
	e.t.Fatalf("auction %s was never archived", auctionID)
	return nil
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}
