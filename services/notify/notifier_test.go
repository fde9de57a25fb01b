package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"auctionhouse/pkg/config"
	"auctionhouse/services/auction"
	"auctionhouse/services/settings"
	"auctionhouse/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) byType(typename string) []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*asynq.Task
	for _, t := range f.tasks {
		if t.Type() == typename {
			out = append(out, t)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *fakeEnqueuer, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &auction.WatchlistEntry{}, &settings.TenantSettings{})
	enq := &fakeEnqueuer{}
	setts := settings.NewService(settings.ServiceParams{DB: db, Config: &config.Config{}})
	svc := NewService(ServiceParams{DB: db, Enqueuer: enq, Settings: setts})
	return svc, enq, db
}

func sampleAuction() *auction.Auction {
	end := time.Now().UTC().Add(time.Minute)
	return &auction.Auction{
		ID:         "a1",
		TenantID:   "guild-1",
		ItemName:   "Dragon Scale",
		LotNumber:  "LOT-00001",
		ChannelRef: "chan-42",
		EndTime:    &end,
	}
}

func TestNotifyEndedCarriesWinner(t *testing.T) {
	svc, enq, _ := newTestService(t)

	svc.NotifyEnded(context.Background(), sampleAuction(), "u1", 150)

	tasks := enq.byType(TypeAuctionEnded)
	require.Len(t, tasks, 1)

	var p Payload
	require.NoError(t, json.Unmarshal(tasks[0].Payload(), &p))
	require.Equal(t, "guild-1", p.TenantID)
	require.Equal(t, "a1", p.AuctionID)
	require.Equal(t, "u1", p.UserID)
	require.EqualValues(t, 150, p.Amount)
	require.Equal(t, "chan-42", p.ChannelRef)
}

func TestNotifyCompletedCarriesPayoutRefs(t *testing.T) {
	svc, enq, db := newTestService(t)

	require.NoError(t, db.Create(&settings.TenantSettings{
		TenantID:      "guild-1",
		LogChannelRef: "log-chan",
		PayoutRef:     "payout-9",
	}).Error)

	svc.NotifyCompleted(context.Background(), sampleAuction(), "u1", 150, 5)

	tasks := enq.byType(TypeAuctionCompleted)
	require.Len(t, tasks, 1)

	var p Payload
	require.NoError(t, json.Unmarshal(tasks[0].Payload(), &p))
	require.Equal(t, "u1", p.UserID)
	require.EqualValues(t, 150, p.Amount)
	require.Equal(t, 5, p.BonusPercent)
	require.Equal(t, "log-chan", p.LogChannelRef)
	require.Equal(t, "payout-9", p.PayoutRef)
}

func TestNotifyFallsBackToTenantChannel(t *testing.T) {
	svc, enq, db := newTestService(t)

	require.NoError(t, db.Create(&settings.TenantSettings{
		TenantID:          "guild-1",
		AuctionChannelRef: "tenant-chan",
	}).Error)

	a := sampleAuction()
	a.ChannelRef = ""
	svc.NotifyStarted(context.Background(), a)

	tasks := enq.byType(TypeAuctionStarted)
	require.Len(t, tasks, 1)

	var p Payload
	require.NoError(t, json.Unmarshal(tasks[0].Payload(), &p))
	require.Equal(t, "tenant-chan", p.ChannelRef)
}

func TestNotifyWatchlistFansOutPerWatcher(t *testing.T) {
	svc, enq, db := newTestService(t)

	for _, userID := range []string{"u1", "u2", "u3"} {
		require.NoError(t, db.Create(&auction.WatchlistEntry{
			ID: userID, TenantID: "guild-1", UserID: userID, AuctionID: "a1",
		}).Error)
	}
	// A watcher of another auction stays quiet.
	require.NoError(t, db.Create(&auction.WatchlistEntry{
		ID: "other", TenantID: "guild-1", UserID: "u9", AuctionID: "a2",
	}).Error)

	svc.NotifyWatchlist(context.Background(), auction.WatchEventBid, sampleAuction())

	tasks := enq.byType(TypeWatchlistEvent)
	require.Len(t, tasks, 3)

	users := map[string]bool{}
	for _, task := range tasks {
		var p Payload
		require.NoError(t, json.Unmarshal(task.Payload(), &p))
		require.Equal(t, auction.WatchEventBid, p.Event)
		users[p.UserID] = true
	}
	require.Equal(t, map[string]bool{"u1": true, "u2": true, "u3": true}, users)
}

func TestEnqueueFailureIsAbsorbed(t *testing.T) {
	svc, enq, _ := newTestService(t)
	enq.err = context.DeadlineExceeded

	// Must not panic or propagate anything.
	svc.NotifyCancelled(context.Background(), sampleAuction(), "withdrawn")
	require.Empty(t, enq.byType(TypeAuctionCancelled))
}
