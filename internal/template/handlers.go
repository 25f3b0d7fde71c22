package template

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hub28/connect/internal/validation"
)

// Handler provides HTTP endpoints for template management.
type Handler struct {
	service *Service
}

// NewHandler creates a new template handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up template routes (API-key or admin auth).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id/templates", h.ListTemplates)
	r.PUT("/tenants/:id/templates/:type", h.SetTemplate)
}

// SetRequest is the request body for template updates.
type SetRequest struct {
	Body   string `json:"body" binding:"required"`
	Active *bool  `json:"active"`
}

// ListTemplates handles GET /v1/tenants/:id/templates
func (h *Handler) ListTemplates(c *gin.Context) {
	templates, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"templates": templates,
		"count":     len(templates),
	})
}

// SetTemplate handles PUT /v1/tenants/:id/templates/:type
func (h *Handler) SetTemplate(c *gin.Context) {
	var req SetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "body is required",
		})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	t, err := h.service.Set(c.Request.Context(), c.Param("id"), c.Param("type"), req.Body, active)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": t})
}
