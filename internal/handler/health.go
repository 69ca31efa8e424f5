package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports liveness and whether evaluation is paused.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"paused":     h.status.Paused(),
		"parameters": h.status.ActiveParameters().Len(),
	})
}
