package query

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hub28/connect/internal/notification"
	"github.com/hub28/connect/internal/pagination"
	"github.com/hub28/connect/internal/tenant"
)

// Handler provides the paginated read endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new query handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up tenant-scoped read routes (API-key or admin auth).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id/notifications", h.ListNotifications)
	r.GET("/tenants/:id/dashboard", h.Dashboard)
}

// RegisterAdminRoutes sets up admin-only read routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/tenants", h.ListTenants)
}

// pageParams reads page and pageSize from the query string. Absent
// values default to page 1 with the standard page size; non-numeric
// values are treated as invalid. An explicit pageSize of 0 is passed
// through so validation rejects it rather than silently defaulting.
func pageParams(c *gin.Context) (page, pageSize int, ok bool) {
	page = 1
	pageSize = pagination.DefaultPageSize
	if raw := c.Query("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, false
		}
		page = v
	}
	if raw := c.Query("pageSize"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, false
		}
		pageSize = v
	}
	return page, pageSize, true
}

func invalidPage(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_page",
		"message": "page and pageSize must be at least 1",
	})
}

// ListTenants handles GET /v1/admin/tenants
func (h *Handler) ListTenants(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		invalidPage(c)
		return
	}

	planFilter := tenant.Plan(c.Query("plan"))
	if planFilter != "" && !tenant.ValidPlan(planFilter) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_filter",
			"message": "plan must be trial, pro or enterprise",
		})
		return
	}
	statusFilter := tenant.Status(c.Query("status"))
	if statusFilter != "" && statusFilter != tenant.StatusActive && statusFilter != tenant.StatusInactive {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_filter",
			"message": "status must be active or inactive",
		})
		return
	}

	result, err := h.service.ListTenants(c.Request.Context(), planFilter, statusFilter, page, pageSize)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPage) {
			invalidPage(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListNotifications handles GET /v1/tenants/:id/notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		invalidPage(c)
		return
	}

	statusFilter := notification.Status(c.Query("status"))
	switch statusFilter {
	case "", "all":
		statusFilter = ""
	case notification.StatusPending, notification.StatusSent, notification.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_filter",
			"message": "status must be all, pending, sent or failed",
		})
		return
	}

	result, err := h.service.ListNotifications(c.Request.Context(), c.Param("id"), statusFilter, page, pageSize)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPage) {
			invalidPage(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Dashboard handles GET /v1/tenants/:id/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	d, err := h.service.Dashboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
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
	c.JSON(http.StatusOK, d)
}
