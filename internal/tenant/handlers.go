package tenant

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hub28/connect/internal/validation"
)

// Handler provides HTTP endpoints for tenant operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new tenant handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up tenant-scoped routes (API-key or admin auth).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id", h.GetTenant)
	r.POST("/tenants/:id/upgrade", h.UpgradePlan)
}

// RegisterAdminRoutes sets up admin-only tenant routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.RegisterTenant)
	r.PATCH("/tenants/:id/status", h.SetStatus)
	r.POST("/tenants/expire-trials", h.ExpireTrials)
}

// RegisterTenant handles POST /v1/admin/tenants
func (h *Handler) RegisterTenant(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name and whatsappNumber are required",
		})
		return
	}

	t, err := h.service.Register(c.Request.Context(), req.Name, req.WhatsAppNumber)
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
				"fields":  verrs,
			})
		case errors.Is(err, ErrNumberInUse):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "number_in_use",
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

	// The API key is returned once at registration and never again.
	c.JSON(http.StatusCreated, gin.H{
		"tenant":  t,
		"api_key": t.APIKey,
	})
}

// GetTenant handles GET /v1/tenants/:id
func (h *Handler) GetTenant(c *gin.Context) {
	t, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No tenant with this ID",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// UpgradePlan handles POST /v1/tenants/:id/upgrade
func (h *Handler) UpgradePlan(c *gin.Context) {
	var req UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "plan is required",
		})
		return
	}

	result, err := h.service.Upgrade(c.Request.Context(), c.Param("id"), req.Plan)
	if err != nil {
		switch {
		case errors.Is(err, ErrTenantNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No tenant with this ID",
			})
		case errors.Is(err, ErrInvalidTransition):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "invalid_transition",
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

	resp := gin.H{"tenant": result.Tenant}
	if result.CheckoutURL != "" {
		resp["checkout_url"] = result.CheckoutURL
	}
	c.JSON(http.StatusOK, resp)
}

// SetStatus handles PATCH /v1/admin/tenants/:id/status
func (h *Handler) SetStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "status is required",
		})
		return
	}

	t, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
			})
		case errors.Is(err, ErrTenantNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No tenant with this ID",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// ExpireTrials handles POST /v1/admin/tenants/expire-trials
func (h *Handler) ExpireTrials(c *gin.Context) {
	count, err := h.service.ExpireTrials(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"expired": count,
		"message": "trial sweep completed",
	})
}
