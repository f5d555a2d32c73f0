package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chorus/presence-bridge/models"
)

// TokenGate requires the caller's token to equal the configured internal
// token. With no token configured every request fails closed.
func TokenGate(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: "bridge_token_missing"})
			return
		}
		if !equalToken(extractToken(c), token) {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: "forbidden"})
			return
		}
		c.Next()
	}
}

// DebugGate additionally requires the debug token when one is configured.
func DebugGate(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		supplied := c.GetHeader("X-Debug-Token")
		if supplied == "" {
			supplied = c.Query("debug_token")
		}
		if !equalToken(supplied, token) {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: "debug_forbidden"})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	// Try Authorization header first
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token := c.GetHeader("X-Bridge-Token"); token != "" {
		return token
	}
	// websocket clients cannot set headers from the browser
	return c.Query("token")
}

func equalToken(supplied, want string) bool {
	if supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(want)) == 1
}
