package auction

import (
	"context"
	"sync"
	"time"

	"auctionhouse/pkg/config"
	"auctionhouse/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Timing bundles the scheduler's clock knobs. Production values come from
// config; tests shrink them to milliseconds.
type Timing struct {
	PollInterval    time.Duration
	ExtensionWindow time.Duration
	ExtensionBump   time.Duration
	PaymentWindow   time.Duration
}

func TimingFromConfig(cfg *config.Config) Timing {
	return Timing{
		PollInterval:    cfg.Auction.PollInterval,
		ExtensionWindow: cfg.Auction.ExtensionWindow,
		ExtensionBump:   cfg.Auction.ExtensionBump,
		PaymentWindow:   cfg.Auction.PaymentWindow,
	}
}

func (t Timing) normalized() Timing {
	if t.PollInterval <= 0 {
		t.PollInterval = 60 * time.Second
	}
	if t.ExtensionWindow <= 0 {
		t.ExtensionWindow = 60 * time.Second
	}
	if t.ExtensionBump <= 0 {
		t.ExtensionBump = 120 * time.Second
	}
	if t.PaymentWindow <= 0 {
		t.PaymentWindow = 180 * time.Second
	}
	return t
}

type schedulerDeps struct {
	db         *gorm.DB
	timing     Timing
	settings   SettingsSource
	reputation ReputationTracker
	blacklist  Blacklist
	notifier   Notifier

	auctions repository.Repository[Auction]
	bids     repository.Repository[Bid]
	queue    repository.Repository[QueueEntry]
	archive  repository.Repository[ArchiveEntry]
}

// Registry holds one Scheduler per tenant. Tenants are independent: each
// scheduler runs its own loop and one tenant's auction never stalls
// another's. There is deliberately no ambient global here; the registry is
// created once at startup and looked up by tenant id.
type Registry struct {
	deps   schedulerDeps
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tenants map[string]*Scheduler
}

type RegistryParams struct {
	fx.In
	DB         *gorm.DB
	Timing     Timing
	Settings   SettingsSource
	Reputation ReputationTracker
	Blacklist  Blacklist
	Notifier   Notifier
}

func NewRegistry(p RegistryParams) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		deps: schedulerDeps{
			db:         p.DB,
			timing:     p.Timing.normalized(),
			settings:   p.Settings,
			reputation: p.Reputation,
			blacklist:  p.Blacklist,
			notifier:   p.Notifier,
			auctions:   repository.ProvideStore[Auction](p.DB),
			bids:       repository.ProvideStore[Bid](p.DB),
			queue:      repository.ProvideStore[QueueEntry](p.DB),
			archive:    repository.ProvideStore[ArchiveEntry](p.DB),
		},
		ctx:     ctx,
		cancel:  cancel,
		tenants: make(map[string]*Scheduler),
	}
}

// ForTenant returns the tenant's scheduler, creating and starting it on
// first use.
func (r *Registry) ForTenant(tenantID string) *Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.tenants[tenantID]; ok {
		return s
	}

	s := newScheduler(tenantID, r.deps)
	r.tenants[tenantID] = s

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		s.run(r.ctx)
	}()

	return s
}

// Resume spins up schedulers for every tenant that still has live auction
// state, so work persisted before a restart is picked up immediately. An
// active auction whose end time already passed settles on the first tick.
func (r *Registry) Resume(ctx context.Context) error {
	var tenantIDs []string
	if err := r.deps.db.WithContext(ctx).
		Model(&Auction{}).
		Distinct("tenant_id").
		Where("status IN ?", []Status{StatusQueued, StatusActive, StatusEnded}).
		Pluck("tenant_id", &tenantIDs).Error; err != nil {
		return err
	}

	for _, id := range tenantIDs {
		r.ForTenant(id)
	}

	if len(tenantIDs) > 0 {
		zap.L().Info("resumed tenant schedulers", zap.Int("tenants", len(tenantIDs)))
	}

	return nil
}

// Stop cancels every scheduler loop and waits for them to drain.
func (r *Registry) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Start wires the registry into the fx application lifecycle.
func Start(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.Resume(ctx)
		},
		OnStop: func(ctx context.Context) error {
			r.Stop()
			return nil
		},
	})
}
