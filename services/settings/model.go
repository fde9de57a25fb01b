package settings

import "time"

// TenantSettings is the read-mostly per-tenant configuration row. Channel
// and payout refs are opaque handles owned by the presentation layer.
type TenantSettings struct {
	TenantID          string    `gorm:"column:tenant_id;primaryKey"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
	AuctionChannelRef string    `gorm:"column:auction_channel_ref"`
	LogChannelRef     string    `gorm:"column:log_channel_ref"`
	PayoutRef         string    `gorm:"column:payout_ref"`
	BlacklistGroupRef string    `gorm:"column:blacklist_group_ref"`
	AuctionDuration   int       `gorm:"column:auction_duration_seconds"`
	MaxActiveAuctions int       `gorm:"column:max_active_auctions"`
}

func (TenantSettings) TableName() string {
	return "tenant_settings"
}

// Keys accepted by UpdateSetting.
const (
	KeyAuctionChannelRef = "auction_channel_ref"
	KeyLogChannelRef     = "log_channel_ref"
	KeyPayoutRef         = "payout_ref"
	KeyBlacklistGroupRef = "blacklist_group_ref"
	KeyAuctionDuration   = "auction_duration_seconds"
	KeyMaxActiveAuctions = "max_active_auctions"
)
