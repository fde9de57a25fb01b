package errutil

// CoreStatus identifies the class of a domain error independently of any
// transport.
type CoreStatus string

const (
	StatusUnknown  CoreStatus = "unknown"
	StatusInternal CoreStatus = "internal"

	StatusBadRequest CoreStatus = "bad_request"
	StatusNotFound   CoreStatus = "not_found"
	StatusConflict   CoreStatus = "conflict"
	StatusForbidden  CoreStatus = "forbidden"
	StatusTimeout    CoreStatus = "timeout"

	// Auction engine statuses.
	StatusInvalidAuctionData CoreStatus = "invalid_auction_data"
	StatusNoActiveAuction    CoreStatus = "no_active_auction"
	StatusBidTooLow          CoreStatus = "bid_too_low"
	StatusBlacklisted        CoreStatus = "blacklisted"
	StatusReputationTooLow   CoreStatus = "reputation_too_low"
	StatusInvalidAuctionID   CoreStatus = "invalid_auction_id"
	StatusAuctionNotFound    CoreStatus = "auction_not_found"
)
