// Package query exposes paginated, filtered read views over tenants
// and notifications for dashboards and admin tooling.
package query

import (
	"context"

	"github.com/hub28/connect/internal/notification"
	"github.com/hub28/connect/internal/pagination"
	"github.com/hub28/connect/internal/tenant"
)

// TenantReader is the query side of the tenant registry.
type TenantReader interface {
	Get(ctx context.Context, id string) (*tenant.Tenant, error)
	List(ctx context.Context, f tenant.Filter, limit, offset int) ([]*tenant.Tenant, int, error)
}

// NotificationReader is the query side of the notification store.
type NotificationReader interface {
	List(ctx context.Context, f notification.Filter, limit, offset int) ([]*notification.Notification, int, error)
	CountByStatusForTenant(ctx context.Context, tenantID string) (map[notification.Status]int, error)
}

// Page is one page of results plus paging totals. Pages is
// ceil(total/pageSize) over the filtered total, so callers can render
// "page N of M".
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
	Pages    int `json:"pages"`
}

// Service answers paginated reads. It never mutates the stores.
type Service struct {
	tenants       TenantReader
	notifications NotificationReader
}

// NewService creates a new query service.
func NewService(tenants TenantReader, notifications NotificationReader) *Service {
	return &Service{tenants: tenants, notifications: notifications}
}

// ListNotifications returns one page of a tenant's notifications,
// newest first. statusFilter narrows to one delivery state; empty or
// "all" matches everything. Returns pagination.ErrInvalidPage when
// page or pageSize is below 1.
func (s *Service) ListNotifications(ctx context.Context, tenantID string, statusFilter notification.Status, page, pageSize int) (*Page[*notification.Notification], error) {
	p, err := pagination.New(page, pageSize)
	if err != nil {
		return nil, err
	}

	f := notification.Filter{TenantID: tenantID, Status: statusFilter}
	items, total, err := s.notifications.List(ctx, f, p.PageSize, p.Offset())
	if err != nil {
		return nil, err
	}

	return &Page[*notification.Notification]{
		Items:    items,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
		Pages:    p.Pages(total),
	}, nil
}

// ListTenants returns one page of tenants, newest first, optionally
// narrowed by plan and status.
func (s *Service) ListTenants(ctx context.Context, planFilter tenant.Plan, statusFilter tenant.Status, page, pageSize int) (*Page[*tenant.Tenant], error) {
	p, err := pagination.New(page, pageSize)
	if err != nil {
		return nil, err
	}

	f := tenant.Filter{Plan: planFilter, Status: statusFilter}
	items, total, err := s.tenants.List(ctx, f, p.PageSize, p.Offset())
	if err != nil {
		return nil, err
	}

	return &Page[*tenant.Tenant]{
		Items:    items,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
		Pages:    p.Pages(total),
	}, nil
}

// Dashboard is the per-tenant overview: the tenant, recent
// notifications, and per-status totals.
type Dashboard struct {
	Tenant        *tenant.Tenant               `json:"tenant"`
	Recent        []*notification.Notification `json:"recent"`
	PendingCount  int                          `json:"pendingCount"`
	SentCount     int                          `json:"sentCount"`
	FailedCount   int                          `json:"failedCount"`
	TotalMessages int                          `json:"totalMessages"`
}

// Dashboard builds the overview for one tenant.
func (s *Service) Dashboard(ctx context.Context, tenantID string) (*Dashboard, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	recent, _, err := s.notifications.List(ctx, notification.Filter{TenantID: tenantID}, 10, 0)
	if err != nil {
		return nil, err
	}

	// One grouped read keeps the counts mutually consistent under
	// concurrent delivery.
	counts, err := s.notifications.CountByStatusForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Tenant:       t,
		Recent:       recent,
		PendingCount: counts[notification.StatusPending],
		SentCount:    counts[notification.StatusSent],
		FailedCount:  counts[notification.StatusFailed],
		TotalMessages: counts[notification.StatusPending] +
			counts[notification.StatusSent] +
			counts[notification.StatusFailed],
	}, nil
}
