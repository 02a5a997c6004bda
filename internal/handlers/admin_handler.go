package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolmarket/internal/auth"
	"poolmarket/internal/models"
	"poolmarket/internal/services"
)

type AdminHandler struct {
	admin  *services.AdminService
	logger *zap.Logger
}

func NewAdminHandler(admin *services.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// AdminMiddleware rejects sessions that neither own a market contract nor
// have an admin_users row. Per-market ownership is checked again by each
// action.
func (h *AdminHandler) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := auth.GetSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		isAdmin, err := h.admin.IsAdmin(c.Request.Context(), sess, nil)
		if err != nil {
			respondError(c, h.logger, err)
			c.Abort()
			return
		}
		if !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not an admin"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// StartBetting handles POST /api/admin/markets/:id/start
func (h *AdminHandler) StartBetting(c *gin.Context) {
	sess, _ := auth.GetSession(c)

	var req models.StartBettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.admin.StartBetting(c.Request.Context(), sess, c.Param("id"), req.DurationMinutes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ResolveMarket handles POST /api/admin/markets/:id/resolve
func (h *AdminHandler) ResolveMarket(c *gin.Context) {
	sess, _ := auth.GetSession(c)

	var req models.ResolveMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.admin.ResolveMarket(c.Request.Context(), sess, c.Param("id"), req.Outcome)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// RestartMarket handles POST /api/admin/markets/:id/restart
func (h *AdminHandler) RestartMarket(c *gin.Context) {
	sess, _ := auth.GetSession(c)

	result, err := h.admin.RestartMarket(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetAdminLogs handles GET /api/admin/logs?limit=&offset=
func (h *AdminHandler) GetAdminLogs(c *gin.Context) {
	sess, _ := auth.GetSession(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, total, err := h.admin.ListAdminLogs(c.Request.Context(), sess, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}
