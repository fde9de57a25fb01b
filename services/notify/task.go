package notify

import "time"

// Task type names routed through asynq. The worker binary registers a
// handler per type.
const (
	TypeAuctionStarted   = "notify:auction_started"
	TypeBidderOutbid     = "notify:bidder_outbid"
	TypeAuctionExtended  = "notify:auction_extended"
	TypeAuctionEnded     = "notify:auction_ended"
	TypeAuctionCompleted = "notify:auction_completed"
	TypeAuctionCancelled = "notify:auction_cancelled"
	TypeWatchlistEvent   = "notify:watchlist_event"
)

// Payload is the common envelope for every notification task. Fields that
// do not apply to a given task type are left zero.
type Payload struct {
	TenantID   string `json:"tenant_id"`
	AuctionID  string `json:"auction_id"`
	ItemName   string `json:"item_name"`
	LotNumber  string `json:"lot_number,omitempty"`
	ChannelRef string `json:"channel_ref,omitempty"`
	MessageRef string `json:"message_ref,omitempty"`

	UserID string `json:"user_id,omitempty"`
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
	Event  string `json:"event,omitempty"`

	// Settlement-only fields. BonusPercent is the winner's payout bonus;
	// the log and payout refs address the audit and payout copies.
	BonusPercent  int    `json:"bonus_percent,omitempty"`
	LogChannelRef string `json:"log_channel_ref,omitempty"`
	PayoutRef     string `json:"payout_ref,omitempty"`

	EndTime *time.Time `json:"end_time,omitempty"`
}
