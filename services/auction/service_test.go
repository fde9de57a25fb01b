package auction

import (
	"context"
	"testing"
	"time"

	"auctionhouse/pkg/db/pagination"
	"auctionhouse/pkg/errutil"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestCreateAuctionValidation(t *testing.T) {
	e := newEnv(t, fastTiming(), 3600)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateAuctionInput
	}{
		{"missing creator", CreateAuctionInput{ItemName: "x", Quantity: 1, MinBid: 10}},
		{"missing item name", CreateAuctionInput{CreatorID: "c", ItemName: "  ", Quantity: 1, MinBid: 10}},
		{"zero quantity", CreateAuctionInput{CreatorID: "c", ItemName: "x", MinBid: 10}},
		{"negative quantity", CreateAuctionInput{CreatorID: "c", ItemName: "x", Quantity: -1, MinBid: 10}},
		{"zero min bid", CreateAuctionInput{CreatorID: "c", ItemName: "x", Quantity: 1}},
		{"negative min bid", CreateAuctionInput{CreatorID: "c", ItemName: "x", Quantity: 1, MinBid: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.CreateAuction(ctx, "guild-1", tc.in)
			require.Equal(t, errutil.StatusInvalidAuctionData, errutil.StatusOf(err))
		})
	}

	auc, err := e.svc.CreateAuction(ctx, "guild-1", CreateAuctionInput{
		CreatorID: "c",
		ItemName:  " Dragon Scale ",
		Quantity:  3,
		Category:  "Rare Items",
		MinBid:    100,
	})
	require.NoError(t, err)
	require.Equal(t, "Dragon Scale", auc.ItemName)
	require.Equal(t, "rare-items", auc.Category)
	require.Equal(t, "LOT-00001", auc.LotNumber)
	require.Equal(t, StatusQueued, auc.Status)
}

func TestGetAuctionLiveThenArchived(t *testing.T) {
	e := newEnv(t, fastTiming(), 3600)
	ctx := context.Background()

	_, _, err := e.svc.GetAuction(ctx, "guild-1", "")
	require.Equal(t, errutil.StatusInvalidAuctionID, errutil.StatusOf(err))

	_, _, err = e.svc.GetAuction(ctx, "guild-1", "missing")
	require.Equal(t, errutil.StatusAuctionNotFound, errutil.StatusOf(err))

	a := e.createAndStart("guild-1", "creator", 100)
	_, err = e.svc.PlaceBid(ctx, "guild-1", "u1", 150)
	require.NoError(t, err)

	live, bids, err := e.svc.GetAuction(ctx, "guild-1", a.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, live.Status)
	require.Len(t, bids, 1)

	_, err = e.svc.Cancel(ctx, "guild-1", a.ID, "withdrawn")
	require.NoError(t, err)
	e.waitArchived(a.ID)

	// Same lookup now serves the archived snapshot.
	archived, bids, err := e.svc.GetAuction(ctx, "guild-1", a.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, archived.Status)
	require.Len(t, bids, 1)
	require.Equal(t, "u1", bids[0].BidderID)

	// Other tenants cannot see it.
	_, _, err = e.svc.GetAuction(ctx, "guild-2", a.ID)
	require.Equal(t, errutil.StatusAuctionNotFound, errutil.StatusOf(err))
}

func TestGetUserAuctions(t *testing.T) {
	e := newEnv(t, fastTiming(), 3600)
	ctx := context.Background()

	e.createAndStart("guild-1", "alice", 100)
	e.create("guild-1", "alice", 100)
	e.create("guild-1", "bob", 100)

	mine, err := e.svc.GetUserAuctions(ctx, "guild-1", "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, a := range mine {
		require.Equal(t, "alice", a.CreatorID)
	}
}

func TestWatchAndUnwatch(t *testing.T) {
	e := newEnv(t, fastTiming(), 3600)
	ctx := context.Background()

	err := e.svc.Watch(ctx, "guild-1", "u1", "missing")
	require.Equal(t, errutil.StatusAuctionNotFound, errutil.StatusOf(err))

	a := e.createAndStart("guild-1", "creator", 100)

	require.NoError(t, e.svc.Watch(ctx, "guild-1", "u1", a.ID))
	require.NoError(t, e.svc.Watch(ctx, "guild-1", "u1", a.ID)) // idempotent

	var count int64
	require.NoError(t, e.db.Model(&WatchlistEntry{}).
		Where("tenant_id = ? AND auction_id = ?", "guild-1", a.ID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.NoError(t, e.svc.Unwatch(ctx, "guild-1", "u1", a.ID))
	require.NoError(t, e.svc.Unwatch(ctx, "guild-1", "u1", a.ID)) // no-op

	require.NoError(t, e.db.Model(&WatchlistEntry{}).
		Where("tenant_id = ? AND auction_id = ?", "guild-1", a.ID).
		Count(&count).Error)
	require.Zero(t, count)
}

func TestGetHistoryPaginates(t *testing.T) {
	e := newEnv(t, fastTiming(), 3600)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a := e.createAndStart("guild-1", "creator", 100)
		_, err := e.svc.Cancel(ctx, "guild-1", a.ID, "cleanup")
		require.NoError(t, err)
		e.waitArchived(a.ID)
	}

	first, pageInfo, err := e.svc.GetHistory(ctx, "guild-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.True(t, pageInfo.HasMore)
	require.NotEmpty(t, pageInfo.NextCursor)

	rest, pageInfo, err := e.svc.GetHistory(ctx, "guild-1", pagination.Pagination{
		Limit:  2,
		Cursor: pageInfo.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, pageInfo.HasMore)

	// No overlap between pages.
	seen := map[string]bool{}
	for _, entry := range append(first, rest...) {
		require.False(t, seen[entry.AuctionID])
		seen[entry.AuctionID] = true
	}
}

func TestGetHistoryOrdersByArchiveTime(t *testing.T) {
	e := newEnv(t, fastTiming(), 3600)
	ctx := context.Background()

	// IDs of different digit lengths compare wrong as strings ("100" sorts
	// before "99"); pages must follow the archive timestamp instead.
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"99", "100", "101"} {
		require.NoError(t, e.db.Create(&ArchiveEntry{
			ID:          id,
			TenantID:    "guild-1",
			AuctionID:   "auc-" + id,
			FinalStatus: StatusCancelled,
			Snapshot:    datatypes.JSON(`{}`),
			ArchivedAt:  base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	first, pageInfo, err := e.svc.GetHistory(ctx, "guild-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "99", first[0].ID)
	require.Equal(t, "100", first[1].ID)
	require.True(t, pageInfo.HasMore)

	rest, pageInfo, err := e.svc.GetHistory(ctx, "guild-1", pagination.Pagination{
		Limit:  2,
		Cursor: pageInfo.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "101", rest[0].ID)
	require.False(t, pageInfo.HasMore)
}
