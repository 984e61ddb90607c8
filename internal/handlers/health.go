package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talentpitch/searchrec/internal/services"
)

// Root answers the API banner on / and on the configured prefix.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "TalentPitch Search API",
		"status":  "ok",
		"version": services.Version,
	})
}

// Health is the liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	status := h.services.Health.Check(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":  status.Status,
		"version": status.Version,
	})
}

// HealthDetail exposes the per-store health breakdown.
func (h *Handlers) HealthDetail(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Health.Check(c.Request.Context()))
}
