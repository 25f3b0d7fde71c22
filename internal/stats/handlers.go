package stats

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for platform statistics.
type Handler struct {
	service *Service
}

// NewHandler creates a new stats handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up stats routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/platform/stats", h.PlatformStats)
}

// PlatformStats handles GET /v1/admin/platform/stats
func (h *Handler) PlatformStats(c *gin.Context) {
	p, err := h.service.Platform(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": p})
}
