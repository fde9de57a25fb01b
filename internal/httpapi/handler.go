package httpapi

import (
	"net/http"

	"auctionhouse/pkg/db/pagination"
	"auctionhouse/pkg/errutil"
	"auctionhouse/services/auction"
	"auctionhouse/services/blacklist"
	"auctionhouse/services/reputation"
	"auctionhouse/services/settings"

	"github.com/gin-gonic/gin"
)

// Handler adapts the services to HTTP. It holds no state of its own; every
// request is resolved against the tenant named in the path.
type Handler struct {
	auctions   *auction.Service
	settings   *settings.Service
	reputation *reputation.Service
	blacklist  *blacklist.Service
}

func respondErr(c *gin.Context, err error) {
	code, body := errutil.HTTPResponse(err)
	c.JSON(code, body)
}

type createAuctionRequest struct {
	CreatorID  string `json:"creator_id" binding:"required"`
	ItemName   string `json:"item_name" binding:"required"`
	Quantity   int    `json:"quantity"`
	Category   string `json:"category"`
	MinBid     int64  `json:"min_bid"`
	ChannelRef string `json:"channel_ref"`
	MessageRef string `json:"message_ref"`
}

func (h *Handler) createAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errutil.InvalidAuctionData(err.Error()))
		return
	}

	auc, err := h.auctions.CreateAuction(c.Request.Context(), c.Param("tenant_id"), auction.CreateAuctionInput{
		CreatorID:  req.CreatorID,
		ItemName:   req.ItemName,
		Quantity:   req.Quantity,
		Category:   req.Category,
		MinBid:     req.MinBid,
		ChannelRef: req.ChannelRef,
		MessageRef: req.MessageRef,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, auc)
}

type placeBidRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

func (h *Handler) placeBid(c *gin.Context) {
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errutil.BadRequest(err.Error()))
		return
	}

	bid, err := h.auctions.PlaceBid(c.Request.Context(), c.Param("tenant_id"), req.UserID, req.Amount)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, bid)
}

type confirmPaymentRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errutil.BadRequest(err.Error()))
		return
	}

	err := h.auctions.ConfirmPayment(c.Request.Context(), c.Param("tenant_id"), c.Param("auction_id"), req.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

type cancelAuctionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelAuction(c *gin.Context) {
	var req cancelAuctionRequest
	_ = c.ShouldBindJSON(&req) // reason is optional

	auc, err := h.auctions.Cancel(c.Request.Context(), c.Param("tenant_id"), c.Param("auction_id"), req.Reason)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, auc)
}

func (h *Handler) getAuction(c *gin.Context) {
	auc, bids, err := h.auctions.GetAuction(c.Request.Context(), c.Param("tenant_id"), c.Param("auction_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auction": auc, "bids": bids})
}

func (h *Handler) getCurrentAuction(c *gin.Context) {
	auc, err := h.auctions.GetCurrentAuction(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, auc)
}

func (h *Handler) getQueue(c *gin.Context) {
	queue, err := h.auctions.GetQueue(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": queue})
}

func (h *Handler) getHistory(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		respondErr(c, errutil.BadRequest(err.Error()))
		return
	}

	entries, pageInfo, err := h.auctions.GetHistory(c.Request.Context(), c.Param("tenant_id"), p)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "page_info": pageInfo})
}

func (h *Handler) getUserAuctions(c *gin.Context) {
	out, err := h.auctions.GetUserAuctions(c.Request.Context(), c.Param("tenant_id"), c.Param("user_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auctions": out})
}

type watchRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) watchAuction(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errutil.BadRequest(err.Error()))
		return
	}

	if err := h.auctions.Watch(c.Request.Context(), c.Param("tenant_id"), req.UserID, c.Param("auction_id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "watching"})
}

func (h *Handler) unwatchAuction(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errutil.BadRequest(err.Error()))
		return
	}

	if err := h.auctions.Unwatch(c.Request.Context(), c.Param("tenant_id"), req.UserID, c.Param("auction_id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *Handler) getReputation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user_id")

	record, err := h.reputation.Get(ctx, userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	tier, err := h.reputation.Tier(ctx, userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	trust, err := h.reputation.TrustScore(ctx, userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	limit, err := h.reputation.EligibilityLimit(ctx, userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	bonus, err := h.reputation.Bonus(ctx, userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":            record,
		"tier":              tier,
		"trust_score":       trust,
		"eligibility_limit": limit,
		"bonus_percent":     bonus,
	})
}

func (h *Handler) getReputationHistory(c *gin.Context) {
	events, err := h.reputation.History(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) getSettings(c *gin.Context) {
	cfg, err := h.settings.Get(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type updateSettingRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value" binding:"required"`
}

func (h *Handler) updateSetting(c *gin.Context) {
	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errutil.BadRequest(err.Error()))
		return
	}

	cfg, err := h.settings.UpdateSetting(c.Request.Context(), c.Param("tenant_id"), req.Key, req.Value)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type blacklistRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) addToBlacklist(c *gin.Context) {
	var req blacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errutil.BadRequest(err.Error()))
		return
	}

	if err := h.blacklist.Add(c.Request.Context(), c.Param("tenant_id"), req.UserID, req.Reason); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "blacklisted"})
}

func (h *Handler) removeFromBlacklist(c *gin.Context) {
	if err := h.blacklist.Remove(c.Request.Context(), c.Param("tenant_id"), c.Param("user_id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
