package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolmarket/internal/auth"
	"poolmarket/internal/models"
	"poolmarket/internal/realtime"
	"poolmarket/internal/services"
)

type MarketHandler struct {
	markets *services.MarketService
	hub     *realtime.Hub
	logger  *zap.Logger
}

func NewMarketHandler(markets *services.MarketService, hub *realtime.Hub, logger *zap.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, hub: hub, logger: logger}
}

// GetMarkets lists markets. A store failure is logged and an empty list is
// returned so the page still renders.
// GET /api/markets?category=
func (h *MarketHandler) GetMarkets(c *gin.Context) {
	markets, err := h.markets.ListMarkets(c.Request.Context(), c.Query("category"))
	if err != nil {
		h.logger.Warn("failed to list markets, serving empty list", zap.Error(err))
		markets = []models.MarketSnapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    markets,
		"count":   len(markets),
	})
}

// GetMarket returns one market by id or slug
// GET /api/markets/:id
func (h *MarketHandler) GetMarket(c *gin.Context) {
	market, err := h.markets.GetMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    market,
	})
}

// GetQuote projects a bet without placing it
// GET /api/markets/:id/quote?candidate_id=&amount=
func (h *MarketHandler) GetQuote(c *gin.Context) {
	candidateID, err := strconv.ParseUint(c.Query("candidate_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid candidate_id"})
		return
	}

	quote, err := h.markets.Quote(c.Request.Context(), c.Param("id"), uint(candidateID), c.Query("amount"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    quote,
	})
}

// GetPriceHistory returns the yes-price log of the current round
// GET /api/markets/:id/history
func (h *MarketHandler) GetPriceHistory(c *gin.Context) {
	points, err := h.markets.PriceHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    points,
		"count":   len(points),
	})
}

// GetRecentBets returns the latest bets of the current round
// GET /api/markets/:id/bets?limit=&offset=
func (h *MarketHandler) GetRecentBets(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bets, err := h.markets.RecentBets(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    bets,
		"count":   len(bets),
	})
}

// PlaceBet places a bet for the signed-in wallet
// POST /api/markets/:id/bets
func (h *MarketHandler) PlaceBet(c *gin.Context) {
	sess, ok := auth.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.markets.PlaceBet(c.Request.Context(), sess, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    result,
	})
}

// Stream subscribes a websocket to a market's snapshots and countdown
// GET /ws/markets/:id
func (h *MarketHandler) Stream(c *gin.Context) {
	market, err := h.markets.GetMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.hub.ServeMarket(c.Writer, c.Request, market.ID)
}
