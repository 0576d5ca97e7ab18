package handlers

import (
	"net/http"
	"strings"

	"nftflip/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// Auth exchanges a wallet address for a session token. Signature
// verification happens on the wallet gateway in front of this service,
// so only shape checks are done here.
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	address := strings.ToLower(strings.TrimSpace(req.Address))
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	token, err := service.GenerateJWT(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"address": address,
	})
}
