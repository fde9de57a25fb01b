package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auctionhouse/pkg/db/option"
	"auctionhouse/pkg/db/pagination"
	"auctionhouse/pkg/errutil"
	"auctionhouse/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the public surface of the auction engine: lifecycle commands
// route through the tenant's scheduler, reads go straight to storage.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	registry *Registry
	engine   *Engine
	sequence LotSequence
	notifier Notifier

	auctions  repository.Repository[Auction]
	bids      repository.Repository[Bid]
	queue     repository.Repository[QueueEntry]
	archive   repository.Repository[ArchiveEntry]
	watchlist repository.Repository[WatchlistEntry]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Registry *Registry
	Engine   *Engine
	Sequence LotSequence
	Notifier Notifier
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		registry: p.Registry,
		engine:   p.Engine,
		sequence: p.Sequence,
		notifier: p.Notifier,

		auctions:  repository.ProvideStore[Auction](p.DB),
		bids:      repository.ProvideStore[Bid](p.DB),
		queue:     repository.ProvideStore[QueueEntry](p.DB),
		archive:   repository.ProvideStore[ArchiveEntry](p.DB),
		watchlist: repository.ProvideStore[WatchlistEntry](p.DB),
	}
}

type CreateAuctionInput struct {
	CreatorID  string
	ItemName   string
	Quantity   int
	Category   string
	MinBid     int64
	ChannelRef string
	MessageRef string
}

// CreateAuction validates the submission, persists it as pending and places
// it at the tail of the tenant queue.
func (s *Service) CreateAuction(ctx context.Context, tenantID string, in CreateAuctionInput) (*Auction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("tenant_id", tenantID),
	}

	if tenantID == "" {
		return nil, errutil.BadRequest("tenant id is required")
	}
	if in.CreatorID == "" {
		return nil, errutil.InvalidAuctionData("creator id is required")
	}
	if strings.TrimSpace(in.ItemName) == "" {
		return nil, errutil.InvalidAuctionData("item name is required")
	}
	if in.Quantity <= 0 {
		return nil, errutil.InvalidAuctionData("quantity must be positive")
	}
	if in.MinBid <= 0 {
		return nil, errutil.InvalidAuctionData("minimum bid must be positive")
	}

	lot, err := s.sequence.NextLotNumber(ctx, tenantID)
	if err != nil {
		// Lot numbers are display-only; creation proceeds without one.
		zap.L().With(opts...).Warn("failed to assign lot number", zap.Error(err))
		lot = ""
	}

	now := time.Now().UTC()
	auc := &Auction{
		ID:         s.node.Generate().String(),
		TenantID:   tenantID,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatorID:  in.CreatorID,
		ItemName:   strings.TrimSpace(in.ItemName),
		Quantity:   in.Quantity,
		Category:   slug.Make(in.Category),
		LotNumber:  lot,
		MinBid:     in.MinBid,
		Status:     StatusPending,
		ChannelRef: in.ChannelRef,
		MessageRef: in.MessageRef,
	}

	if err := s.auctions.Create(ctx, auc); err != nil {
		zap.L().With(opts...).Error("failed to persist auction", zap.Error(err))
		return nil, errutil.Internal("failed to create auction", errutil.WithErr(err))
	}

	if err := s.registry.ForTenant(tenantID).Enqueue(ctx, auc.ID); err != nil {
		return nil, err
	}
	auc.Status = StatusQueued

	zap.L().With(opts...).Info("auction created",
		zap.String("auction_id", auc.ID),
		zap.String("lot_number", auc.LotNumber))
	return auc, nil
}

// PlaceBid forwards to the bidding engine.
func (s *Service) PlaceBid(ctx context.Context, tenantID, userID string, amount int64) (*Bid, error) {
	return s.engine.PlaceBid(ctx, tenantID, userID, amount)
}

// ConfirmPayment resolves the open payment window for the auction, if any.
func (s *Service) ConfirmPayment(ctx context.Context, tenantID, auctionID, userID string) error {
	if auctionID == "" {
		return errutil.InvalidAuctionID("auction id is required")
	}
	return s.registry.ForTenant(tenantID).ConfirmPayment(ctx, auctionID, userID)
}

// Cancel terminates an auction before settlement.
func (s *Service) Cancel(ctx context.Context, tenantID, auctionID, reason string) (*Auction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if auctionID == "" {
		return nil, errutil.InvalidAuctionID("auction id is required")
	}
	return s.registry.ForTenant(tenantID).Cancel(ctx, auctionID, reason)
}

// GetAuction looks up a live auction first, then the archive.
func (s *Service) GetAuction(ctx context.Context, tenantID, auctionID string) (*Auction, []*Bid, error) {
	if auctionID == "" {
		return nil, nil, errutil.InvalidAuctionID("auction id is required")
	}

	auc, err := s.auctions.FindOne(ctx, &Auction{ID: auctionID, TenantID: tenantID})
	if err != nil {
		return nil, nil, errutil.Internal("failed to load auction", errutil.WithErr(err))
	}
	if auc != nil {
		bids, err := s.bids.Find(ctx, &Bid{AuctionID: auc.ID},
			option.WithSortBy(option.QuerySortBy{Field: "created_at", OrderBy: "ASC"}))
		if err != nil {
			return nil, nil, errutil.Internal("failed to load bid history", errutil.WithErr(err))
		}
		return auc, bids, nil
	}

	entry, err := s.archive.FindOne(ctx, &ArchiveEntry{AuctionID: auctionID, TenantID: tenantID})
	if err != nil {
		return nil, nil, errutil.Internal("failed to load auction history", errutil.WithErr(err))
	}
	if entry == nil {
		return nil, nil, errutil.AuctionNotFound(fmt.Sprintf("auction %s not found", auctionID))
	}

	archived, bids, err := entry.DecodeSnapshot()
	if err != nil {
		return nil, nil, errutil.Internal("failed to decode auction snapshot", errutil.WithErr(err))
	}
	return archived, bids, nil
}

// GetCurrentAuction returns the tenant's active auction.
func (s *Service) GetCurrentAuction(ctx context.Context, tenantID string) (*Auction, error) {
	auc, err := s.auctions.FindOne(ctx, &Auction{TenantID: tenantID, Status: StatusActive})
	if err != nil {
		return nil, errutil.Internal("failed to load active auction", errutil.WithErr(err))
	}
	if auc == nil {
		return nil, errutil.NoActiveAuction("no auction is currently running")
	}
	return auc, nil
}

// GetQueue returns queued auctions in activation order.
func (s *Service) GetQueue(ctx context.Context, tenantID string) ([]*Auction, error) {
	entries, err := s.queue.Find(ctx, &QueueEntry{TenantID: tenantID},
		option.WithSortBy(option.QuerySortBy{Field: "id", OrderBy: "ASC"}))
	if err != nil {
		return nil, errutil.Internal("failed to load queue", errutil.WithErr(err))
	}

	out := make([]*Auction, 0, len(entries))
	for _, entry := range entries {
		auc, err := s.auctions.FindOne(ctx, &Auction{ID: entry.AuctionID, TenantID: tenantID})
		if err != nil {
			return nil, errutil.Internal("failed to load queued auction", errutil.WithErr(err))
		}
		if auc != nil && auc.Status == StatusQueued {
			out = append(out, auc)
		}
	}
	return out, nil
}

// GetHistory pages through settled and cancelled auctions, oldest first.
func (s *Service) GetHistory(ctx context.Context, tenantID string, p pagination.Pagination) ([]*ArchiveEntry, *pagination.PageInfo, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	// Fetch one extra row to detect whether another page exists. Pages
	// follow the archive timestamp; the id only breaks ties.
	entries, err := s.archive.Find(ctx, &ArchiveEntry{TenantID: tenantID},
		option.WithSortBy(option.QuerySortBy{Field: "archived_at", OrderBy: "ASC"}),
		option.WithSortBy(option.QuerySortBy{Field: "id", OrderBy: "ASC"}),
		option.ApplyKeysetPagination(pagination.Pagination{Cursor: p.Cursor, Limit: limit + 1}, "archived_at"))
	if err != nil {
		return nil, nil, errutil.Internal("failed to load auction history", errutil.WithErr(err))
	}

	pageInfo, entries := pagination.BuildCursorPageInfo(entries, limit, func(e *ArchiveEntry) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: e.ArchivedAt.UTC().Format(time.RFC3339Nano),
			ID:        e.ID,
		})
		return cursor
	})
	return entries, pageInfo, nil
}

// GetUserAuctions lists live auctions created by the user, newest first.
func (s *Service) GetUserAuctions(ctx context.Context, tenantID, userID string) ([]*Auction, error) {
	return s.findAuctions(ctx, &Auction{TenantID: tenantID, CreatorID: userID})
}

func (s *Service) findAuctions(ctx context.Context, query *Auction) ([]*Auction, error) {
	out, err := s.auctions.Find(ctx, query,
		option.WithSortBy(option.QuerySortBy{Field: "created_at", OrderBy: "DESC"}))
	if err != nil {
		return nil, errutil.Internal("failed to load auctions", errutil.WithErr(err))
	}
	return out, nil
}

// Watch subscribes the user to events on a live auction. Idempotent.
func (s *Service) Watch(ctx context.Context, tenantID, userID, auctionID string) error {
	auc, err := s.auctions.FindOne(ctx, &Auction{ID: auctionID, TenantID: tenantID})
	if err != nil {
		return errutil.Internal("failed to load auction", errutil.WithErr(err))
	}
	if auc == nil {
		return errutil.AuctionNotFound(fmt.Sprintf("auction %s not found", auctionID))
	}

	existing, err := s.watchlist.FindOne(ctx, &WatchlistEntry{TenantID: tenantID, UserID: userID, AuctionID: auctionID})
	if err != nil {
		return errutil.Internal("failed to check watchlist", errutil.WithErr(err))
	}
	if existing != nil {
		return nil
	}

	entry := &WatchlistEntry{
		ID:        s.node.Generate().String(),
		TenantID:  tenantID,
		UserID:    userID,
		AuctionID: auctionID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.watchlist.Create(ctx, entry); err != nil {
		return errutil.Internal("failed to add watchlist entry", errutil.WithErr(err))
	}
	return nil
}

// Unwatch removes the subscription. Removing a missing entry is a no-op.
func (s *Service) Unwatch(ctx context.Context, tenantID, userID, auctionID string) error {
	if err := s.watchlist.Delete(ctx, &WatchlistEntry{TenantID: tenantID, UserID: userID, AuctionID: auctionID}); err != nil {
		return errutil.Internal("failed to remove watchlist entry", errutil.WithErr(err))
	}
	return nil
}
