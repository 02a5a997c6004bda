package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolmarket/internal/auth"
	"poolmarket/internal/models"
	"poolmarket/internal/services"
)

// PositionHandler serves a wallet's stakes and winnings claims
type PositionHandler struct {
	markets *services.MarketService
	claims  *services.ClaimService
	logger  *zap.Logger
}

func NewPositionHandler(markets *services.MarketService, claims *services.ClaimService, logger *zap.Logger) *PositionHandler {
	return &PositionHandler{markets: markets, claims: claims, logger: logger}
}

// GetPosition handles GET /api/markets/:id/position
func (h *PositionHandler) GetPosition(c *gin.Context) {
	wallet, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	position, err := h.markets.UserPosition(c.Request.Context(), c.Param("id"), wallet)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    position,
	})
}

// GetEligibility handles GET /api/markets/:id/claim
func (h *PositionHandler) GetEligibility(c *gin.Context) {
	wallet, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	eligibility, err := h.claims.Eligibility(c.Request.Context(), c.Param("id"), wallet)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    eligibility,
	})
}

// GetClaims handles GET /api/markets/:id/claims
func (h *PositionHandler) GetClaims(c *gin.Context) {
	wallet, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	claims, err := h.claims.ClaimHistory(c.Request.Context(), c.Param("id"), wallet)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    claims,
		"count":   len(claims),
	})
}

// Claim handles POST /api/markets/:id/claim
func (h *PositionHandler) Claim(c *gin.Context) {
	sess, ok := auth.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.ClaimRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	claim, err := h.claims.Claim(c.Request.Context(), sess, c.Param("id"), req.TxHash)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    claim,
	})
}
