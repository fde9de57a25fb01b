package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RegisterHandlers binds one delivery handler per notification type. The
// handlers here log structured delivery records; a chat or webhook transport
// slots in behind the same mux without touching the engine.
func RegisterHandlers(mux *asynq.ServeMux) {
	for _, typename := range []string{
		TypeAuctionStarted,
		TypeBidderOutbid,
		TypeAuctionExtended,
		TypeAuctionEnded,
		TypeAuctionCompleted,
		TypeAuctionCancelled,
		TypeWatchlistEvent,
	} {
		mux.HandleFunc(typename, handleDelivery)
	}
}

func handleDelivery(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", t.Type(), err)
	}

	zap.L().Info("notification delivered",
		zap.String("type", t.Type()),
		zap.String("tenant_id", p.TenantID),
		zap.String("auction_id", p.AuctionID),
		zap.String("user_id", p.UserID),
		zap.String("channel_ref", p.ChannelRef),
		zap.String("event", p.Event),
		zap.Int64("amount", p.Amount),
		zap.Int("bonus_percent", p.BonusPercent),
	)
	return nil
}
