package ws

import (
	"net/http"

	"nftflip/internal/logger"
	"nftflip/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HandleWS upgrades an authenticated request and hands the connection
// to the hub. The wallet address from the token is bound immediately;
// register_identity can rebind it later (multi-wallet clients).
func HandleWS(hub *Hub, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		address, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err)
			return
		}

		client := NewClient(uuid.NewString(), address, conn, hub)
		hub.AddConnection(client)
		go client.Run()
	}
}
