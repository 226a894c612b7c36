package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cgraph/gatekeeper/core"
	"github.com/cgraph/gatekeeper/service"
)

const contextUserIDKey = "userID"

// AuthMiddleware creates middleware that validates bearer access tokens and
// stores the authenticated user id in the request context.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		userID, err := authService.VerifyAccessToken(token)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			case errors.Is(err, core.ErrTokenWrongType):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Wrong token type"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

// currentUserID returns the user id set by AuthMiddleware. Empty outside a
// guarded route.
func currentUserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}
