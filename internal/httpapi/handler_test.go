package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auctionhouse/pkg/config"
	"auctionhouse/pkg/health"
	"auctionhouse/services/auction"
	"auctionhouse/services/blacklist"
	"auctionhouse/services/notify"
	"auctionhouse/services/reputation"
	"auctionhouse/services/settings"
	"auctionhouse/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type nullEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (n *nullEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type staticSequence struct {
	n int64
}

func (s *staticSequence) NextLotNumber(context.Context, string) (string, error) {
	return fmt.Sprintf("LOT-%05d", atomic.AddInt64(&s.n, 1)), nil
}

// newTestRouter wires the real services over an in-memory database, with
// redis-backed pieces replaced by in-process stand-ins.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	db := testutil.NewTestDB(t,
		&auction.Auction{}, &auction.Bid{}, &auction.QueueEntry{},
		&auction.WatchlistEntry{}, &auction.ArchiveEntry{},
		&settings.TenantSettings{}, &reputation.Record{}, &reputation.Event{},
		&blacklist.Entry{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Auction.DefaultDuration = time.Hour

	setts := settings.NewService(settings.ServiceParams{DB: db, Config: cfg})
	rep := reputation.NewService(reputation.ServiceParams{DB: db, Node: node})
	bl := blacklist.NewService(blacklist.ServiceParams{DB: db, Node: node})
	notifier := notify.NewService(notify.ServiceParams{DB: db, Enqueuer: &nullEnqueuer{}, Settings: setts})

	registry := auction.NewRegistry(auction.RegistryParams{
		DB:         db,
		Timing:     auction.Timing{PollInterval: 10 * time.Millisecond},
		Settings:   setts,
		Reputation: rep,
		Blacklist:  bl,
		Notifier:   notifier,
	})
	t.Cleanup(registry.Stop)

	engine := auction.NewEngine(db, node, registry, rep, bl, notifier)
	svc := auction.NewService(auction.ServiceParams{
		DB:       db,
		Node:     node,
		Registry: registry,
		Engine:   engine,
		Sequence: &staticSequence{},
		Notifier: notifier,
	})

	return ProvideRouter(RouterParams{
		Config:     cfg,
		Auctions:   svc,
		Settings:   setts,
		Reputation: rep,
		Blacklist:  bl,
		Health:     health.ProvideHealth(health.HealthParams{DB: db}),
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAuctionEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/tenants/guild-1/auctions", map[string]any{
		"creator_id": "alice",
		"item_name":  "Dragon Scale",
		"quantity":   2,
		"category":   "Rare Items",
		"min_bid":    100,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var auc auction.Auction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auc))
	require.Equal(t, "rare-items", auc.Category)
	require.NotEmpty(t, auc.ID)

	// Validation failures map to 400.
	w = doJSON(t, router, http.MethodPost, "/v1/tenants/guild-1/auctions", map[string]any{
		"creator_id": "alice",
		"item_name":  "Broken",
		"quantity":   0,
		"min_bid":    100,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBidErrorMapping(t *testing.T) {
	router := newTestRouter(t)

	// No active auction: 404.
	w := doJSON(t, router, http.MethodPost, "/v1/tenants/guild-1/bids", map[string]any{
		"user_id": "u1", "amount": 100,
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/tenants/guild-1/auctions", map[string]any{
		"creator_id": "alice", "item_name": "Dragon Scale", "quantity": 1, "min_bid": 100,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Wait for the scheduler to activate it.
	require.Eventually(t, func() bool {
		w := doJSON(t, router, http.MethodGet, "/v1/tenants/guild-1/auctions/current", nil)
		return w.Code == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	// Too low: 409.
	w = doJSON(t, router, http.MethodPost, "/v1/tenants/guild-1/bids", map[string]any{
		"user_id": "u1", "amount": 50,
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/tenants/guild-1/bids", map[string]any{
		"user_id": "u1", "amount": 100,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Blacklisted user: 403.
	w = doJSON(t, router, http.MethodPost, "/v1/tenants/guild-1/blacklist", map[string]any{
		"user_id": "u2", "reason": "test",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/tenants/guild-1/bids", map[string]any{
		"user_id": "u2", "amount": 200,
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestReputationTierOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/tenants/guild-1/users/newbie/reputation", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tier             string `json:"tier"`
		EligibilityLimit int64  `json:"eligibility_limit"`
		BonusPercent     int    `json:"bonus_percent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, string(reputation.TierNovice), resp.Tier)
	require.EqualValues(t, 500_000, resp.EligibilityLimit)
	require.Zero(t, resp.BonusPercent)
}

func TestSettingsRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPatch, "/v1/tenants/guild-1/settings", map[string]any{
		"key": settings.KeyAuctionChannelRef, "value": "chan-7",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/tenants/guild-1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got settings.TenantSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "chan-7", got.AuctionChannelRef)

	// Unknown keys are rejected.
	w = doJSON(t, router, http.MethodPatch, "/v1/tenants/guild-1/settings", map[string]any{
		"key": "nonsense", "value": "x",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
