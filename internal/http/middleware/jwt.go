package middleware

import (
	"net/http"
	"strings"

	"nftflip/internal/service"

	"github.com/gin-gonic/gin"
)

// JWT validates the Authorization bearer token and stores the wallet
// address in the gin context under "address".
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		address, err := service.ParseJWT(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("address", address)
		c.Next()
	}
}
