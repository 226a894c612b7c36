package http

import (
	"github.com/gin-gonic/gin"

	"github.com/cgraph/gatekeeper/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(authService)

	// Public auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/register", handlers.Register)
		auth.POST("/login", handlers.Login)
		auth.POST("/wallet/challenge", handlers.WalletChallenge)
		auth.POST("/wallet/verify", handlers.WalletVerify)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Routes requiring a valid access token
	guarded := router.Group("/auth")
	guarded.Use(AuthMiddleware(authService))
	{
		guarded.POST("/totp/setup", handlers.TOTPSetup)
		guarded.POST("/totp/enable", handlers.TOTPEnable)
		guarded.POST("/totp/verify", handlers.TOTPVerify)
		guarded.POST("/totp/disable", handlers.TOTPDisable)
		guarded.POST("/totp/backup-codes/regenerate", handlers.BackupCodesRegenerate)
		guarded.POST("/totp/backup-codes/use", handlers.BackupCodeUse)
		guarded.GET("/sessions", handlers.Sessions)
		guarded.DELETE("/sessions/:id", handlers.RevokeSession)
		guarded.DELETE("/sessions", handlers.RevokeAllSessions)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
	}

	return router
}
