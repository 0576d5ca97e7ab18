package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetMatch returns the durable snapshot of one match. The live room is
// the authority while a match runs; this endpoint serves lobby views
// and post-game summaries.
func (h *Handler) GetMatch(c *gin.Context) {
	m, err := h.MatchRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": m})
}

// ListMatches returns recent non-terminal matches for the lobby.
func (h *Handler) ListMatches(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	matches, err := h.MatchRepo.ListOpen(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches})
}
