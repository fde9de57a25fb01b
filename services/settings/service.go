package settings

import (
	"context"
	"strconv"
	"time"

	"auctionhouse/pkg/config"
	"auctionhouse/pkg/errutil"
	"auctionhouse/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	config *config.Config
	repo   repository.Repository[TenantSettings]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
		repo:   repository.ProvideStore[TenantSettings](p.DB),
	}
}

// Get returns the tenant's settings, falling back to configured defaults
// when the tenant has never been configured.
func (s *Service) Get(ctx context.Context, tenantID string) (*TenantSettings, error) {
	row, err := s.repo.FindOne(ctx, &TenantSettings{TenantID: tenantID})
	if err != nil {
		zap.L().Error("failed to query tenant settings", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to load tenant settings", errutil.WithErr(err))
	}

	if row == nil {
		row = s.defaults(tenantID)
	}

	if row.AuctionDuration <= 0 {
		row.AuctionDuration = int(s.config.Auction.DefaultDuration / time.Second)
	}
	if row.MaxActiveAuctions < 1 {
		row.MaxActiveAuctions = 1
	}

	return row, nil
}

func (s *Service) defaults(tenantID string) *TenantSettings {
	return &TenantSettings{
		TenantID:          tenantID,
		AuctionDuration:   int(s.config.Auction.DefaultDuration / time.Second),
		MaxActiveAuctions: 1,
	}
}

// UpdateSetting applies a single keyed change, creating the settings row on
// first write.
func (s *Service) UpdateSetting(ctx context.Context, tenantID, key, value string) (*TenantSettings, error) {
	row, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	switch key {
	case KeyAuctionChannelRef:
		row.AuctionChannelRef = value
	case KeyLogChannelRef:
		row.LogChannelRef = value
	case KeyPayoutRef:
		row.PayoutRef = value
	case KeyBlacklistGroupRef:
		row.BlacklistGroupRef = value
	case KeyAuctionDuration:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return nil, errutil.BadRequest("auction duration must be a positive number of seconds")
		}
		row.AuctionDuration = n
	case KeyMaxActiveAuctions:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return nil, errutil.BadRequest("max active auctions must be at least 1")
		}
		row.MaxActiveAuctions = n
	default:
		return nil, errutil.BadRequest("unknown setting key: " + key)
	}

	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		zap.L().Error("failed to persist tenant settings",
			zap.String("tenant_id", tenantID),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, errutil.Internal("failed to persist tenant settings", errutil.WithErr(err))
	}

	return row, nil
}
