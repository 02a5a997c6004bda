package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolmarket/internal/auth"
	"poolmarket/internal/session"
)

// Routes bundles the handlers mounted by SetupRoutes.
type Routes struct {
	Auth       *AuthHandler
	Markets    *MarketHandler
	Positions  *PositionHandler
	Admin      *AdminHandler
	Blockchain *BlockchainHandler
	Sessions   session.Store
	Logger     *zap.Logger
}

// SetupRoutes mounts every endpoint on router.
func SetupRoutes(router *gin.Engine, r Routes) {
	authRequired := auth.AuthMiddleware(r.Sessions, r.Logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	authRoutes := router.Group("/auth")
	{
		authRoutes.GET("/nonce", r.Auth.GetNonce)
		authRoutes.POST("/wallet", r.Auth.WalletLogin)
		authRoutes.POST("/logout", authRequired, r.Auth.Logout)
		authRoutes.GET("/me", authRequired, r.Auth.GetMe)
		authRoutes.POST("/chain", authRequired, r.Auth.SwitchChain)
	}

	router.GET("/ws/markets/:id", r.Markets.Stream)

	api := router.Group("/api")
	{
		api.GET("/chain", r.Blockchain.GetChain)

		markets := api.Group("/markets")
		{
			markets.GET("", r.Markets.GetMarkets)
			markets.GET("/:id", r.Markets.GetMarket)
			markets.GET("/:id/quote", r.Markets.GetQuote)
			markets.GET("/:id/history", r.Markets.GetPriceHistory)
			markets.GET("/:id/bets", r.Markets.GetRecentBets)

			markets.POST("/:id/bets", authRequired, r.Markets.PlaceBet)
			markets.GET("/:id/position", authRequired, r.Positions.GetPosition)
			markets.GET("/:id/claim", authRequired, r.Positions.GetEligibility)
			markets.POST("/:id/claim", authRequired, r.Positions.Claim)
			markets.GET("/:id/claims", authRequired, r.Positions.GetClaims)
		}

		admin := api.Group("/admin", authRequired, r.Admin.AdminMiddleware())
		{
			admin.POST("/markets/:id/start", r.Admin.StartBetting)
			admin.POST("/markets/:id/resolve", r.Admin.ResolveMarket)
			admin.POST("/markets/:id/restart", r.Admin.RestartMarket)
			admin.GET("/logs", r.Admin.GetAdminLogs)
			admin.GET("/diagnostics", r.Blockchain.GetDiagnostics)
		}
	}
}
