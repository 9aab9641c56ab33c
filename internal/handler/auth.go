package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthMiddleware gates every route in its group behind a bcrypt-hashed
// API key sent as X-Admin-Key. An empty apiKeyHash disables the check
// entirely (apiKeyHash is expected to come from deployment config, not a
// per-request value), matching a local/dev setup that relies on network
// isolation instead.
func AdminAuthMiddleware(apiKeyHash string) gin.HandlerFunc {
	if apiKeyHash == "" {
		return func(c *gin.Context) {}
	}
	return func(c *gin.Context) {
		key := c.GetHeader("X-Admin-Key")
		if key == "" || bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(key)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Next()
	}
}
