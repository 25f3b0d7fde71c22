package notification

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hub28/connect/internal/validation"
)

// Handler provides HTTP endpoints for notification operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up notification routes (API-key or admin auth).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tenants/:id/webhook/erp", h.IngestERPEvent)
	r.GET("/notifications/:id", h.GetNotification)
	r.POST("/notifications/:id/retry", h.ManualRetry)
}

// IngestERPEvent handles POST /v1/tenants/:id/webhook/erp
//
// The ERP posts business events (sale closed, quote issued, payment
// received, reminder due) which become pending notifications.
func (h *Handler) IngestERPEvent(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "type, clientName and phone are required",
		})
		return
	}

	n, err := h.service.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
				"fields":  verrs,
			})
		case errors.Is(err, ErrUnknownTenant):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "unknown_tenant",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"notification": n})
}

// GetNotification handles GET /v1/notifications/:id
func (h *Handler) GetNotification(c *gin.Context) {
	n, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No notification with this ID",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n})
}

// ManualRetry handles POST /v1/notifications/:id/retry
func (h *Handler) ManualRetry(c *gin.Context) {
	n, err := h.service.ManualRetry(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotificationNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No notification with this ID",
			})
		case errors.Is(err, ErrRetryNotAllowed):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "retry_not_allowed",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n})
}
