package auction

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	switch s {
	case StatusPending, StatusQueued, StatusActive, StatusEnded, StatusCompleted, StatusCancelled:
		return string(s)
	default:
		return ""
	}
}

// Terminal reports whether the status never transitions again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Auction is one item lot being sold. CurrentBid is non-decreasing for the
// life of the record and TopBidderID always names the bidder of the last
// accepted bid. WinnerID diverges from TopBidderID only when settlement
// falls back after a payment default.
type Auction struct {
	ID         string    `gorm:"column:id;primaryKey"`
	TenantID   string    `gorm:"column:tenant_id;index"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
	CreatorID  string    `gorm:"column:creator_id;index"`
	ItemName   string    `gorm:"column:item_name"`
	Quantity   int       `gorm:"column:quantity"`
	Category   string    `gorm:"column:category"`
	LotNumber  string    `gorm:"column:lot_number"`
	MinBid     int64     `gorm:"column:min_bid"`
	CurrentBid int64     `gorm:"column:current_bid"`

	TopBidderID  string `gorm:"column:top_bidder_id"`
	WinnerID     string `gorm:"column:winner_id"`
	WinnerAmount int64  `gorm:"column:winner_amount"`

	Status     Status     `gorm:"column:status;index"`
	EndTime    *time.Time `gorm:"column:end_time"`
	LastBidAt  *time.Time `gorm:"column:last_bid_at"`
	ExtendedAt *time.Time `gorm:"column:extended_at"`

	ChannelRef string `gorm:"column:channel_ref"`
	MessageRef string `gorm:"column:message_ref"`
}

func (Auction) TableName() string {
	return "auctions"
}

// Bid is an append-only entry in an auction's history; never mutated or
// deleted once accepted.
type Bid struct {
	ID        string    `gorm:"column:id;primaryKey"`
	AuctionID string    `gorm:"column:auction_id;index"`
	TenantID  string    `gorm:"column:tenant_id"`
	BidderID  string    `gorm:"column:bidder_id"`
	Amount    int64     `gorm:"column:amount"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Bid) TableName() string {
	return "bids"
}

// QueueEntry orders queued auctions FIFO per tenant via the autoincrement
// primary key.
type QueueEntry struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID  string    `gorm:"column:tenant_id;index"`
	AuctionID string    `gorm:"column:auction_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (QueueEntry) TableName() string {
	return "auction_queue"
}

// WatchlistEntry is a pure lookup relation, not ownership.
type WatchlistEntry struct {
	ID        string    `gorm:"column:id;primaryKey"`
	TenantID  string    `gorm:"column:tenant_id;index:idx_watchlist_tenant_auction"`
	UserID    string    `gorm:"column:user_id"`
	AuctionID string    `gorm:"column:auction_id;index:idx_watchlist_tenant_auction"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (WatchlistEntry) TableName() string {
	return "watchlist_entries"
}

// ArchiveEntry is the append-only history row a settled or cancelled auction
// is moved to. Snapshot carries the final auction record and its bid history.
type ArchiveEntry struct {
	ID          string         `gorm:"column:id;primaryKey"`
	TenantID    string         `gorm:"column:tenant_id;index"`
	AuctionID   string         `gorm:"column:auction_id;index"`
	FinalStatus Status         `gorm:"column:final_status"`
	Snapshot    datatypes.JSON `gorm:"column:snapshot"`
	ArchivedAt  time.Time      `gorm:"column:archived_at"`
}

func (ArchiveEntry) TableName() string {
	return "auction_history"
}

type archiveSnapshot struct {
	Auction *Auction `json:"auction"`
	Bids    []*Bid   `json:"bids"`
}

func newArchiveEntry(id string, a *Auction, bids []*Bid, final Status) (*ArchiveEntry, error) {
	snap, err := json.Marshal(archiveSnapshot{Auction: a, Bids: bids})
	if err != nil {
		return nil, err
	}
	return &ArchiveEntry{
		ID:          id,
		TenantID:    a.TenantID,
		AuctionID:   a.ID,
		FinalStatus: final,
		Snapshot:    datatypes.JSON(snap),
		ArchivedAt:  time.Now().UTC(),
	}, nil
}

// DecodeSnapshot unpacks the archived auction record.
func (e *ArchiveEntry) DecodeSnapshot() (*Auction, []*Bid, error) {
	var snap archiveSnapshot
	if err := json.Unmarshal(e.Snapshot, &snap); err != nil {
		return nil, nil, err
	}
	return snap.Auction, snap.Bids, nil
}
