package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolmarket/internal/auth"
	"poolmarket/internal/services"
)

// BlockchainHandler exposes the contract backend configuration
type BlockchainHandler struct {
	admin   *services.AdminService
	mode    string
	chainID int64
	logger  *zap.Logger
}

func NewBlockchainHandler(admin *services.AdminService, mode string, chainID int64, logger *zap.Logger) *BlockchainHandler {
	return &BlockchainHandler{admin: admin, mode: mode, chainID: chainID, logger: logger}
}

// GetChain tells the client which network bets must be sent on
// GET /api/chain
func (h *BlockchainHandler) GetChain(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"mode":     h.mode,
			"chain_id": h.chainID,
		},
	})
}

// GetDiagnostics checks RPC connectivity and operator configuration
// GET /api/admin/diagnostics
func (h *BlockchainHandler) GetDiagnostics(c *gin.Context) {
	sess, _ := auth.GetSession(c)

	result, err := h.admin.Diagnostics(c.Request.Context(), sess)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
