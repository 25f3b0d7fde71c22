// Package stats computes the billing and usage aggregates the
// dashboards display. All figures are pure functions over store
// snapshots; nothing here mutates the registries.
package stats

import (
	"context"
	"math"
	"time"

	"github.com/hub28/connect/internal/notification"
	"github.com/hub28/connect/internal/tenant"
)

// ChurnWindow is the trailing period for churn accounting.
const ChurnWindow = 30 * 24 * time.Hour

// TenantSource provides a consistent tenant snapshot.
type TenantSource interface {
	Snapshot(ctx context.Context) ([]*tenant.Tenant, error)
}

// NotificationSource provides per-status notification totals.
type NotificationSource interface {
	CountByStatus(ctx context.Context) (map[notification.Status]int, error)
}

// PlanStat is one slice of the plan distribution.
type PlanStat struct {
	Count   int `json:"count"`
	Percent int `json:"percent"`
}

// Platform is the aggregate view over all tenants and notifications.
// Percentages are rounded to the nearest whole percent; any figure
// with a zero denominator reports 0.
type Platform struct {
	MRRCents          int64               `json:"mrrCents"`
	TotalTenants      int                 `json:"totalTenants"`
	ActiveTenants     int                 `json:"activeTenants"`
	ConversionPercent int                 `json:"conversionPercent"`
	ChurnPercent      int                 `json:"churnPercent"`
	PlanDistribution  map[string]PlanStat `json:"planDistribution"`
	Notifications     map[string]int      `json:"notifications"`
	GeneratedAt       time.Time           `json:"generatedAt"`
}

// Service computes platform aggregates on demand.
type Service struct {
	tenants       TenantSource
	notifications NotificationSource
}

// NewService creates a new stats service.
func NewService(tenants TenantSource, notifications NotificationSource) *Service {
	return &Service{tenants: tenants, notifications: notifications}
}

// Platform computes the aggregate view at now. The tenant snapshot is
// taken once and every figure derives from that same copy, so
// concurrent mutation of the stores cannot produce inconsistent
// partial sums.
func (s *Service) Platform(ctx context.Context, now time.Time) (*Platform, error) {
	tenants, err := s.tenants.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.notifications.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return Compute(tenants, counts, now), nil
}

// Compute derives every aggregate from one tenant snapshot.
func Compute(tenants []*tenant.Tenant, notifCounts map[notification.Status]int, now time.Time) *Platform {
	p := &Platform{
		TotalTenants:     len(tenants),
		PlanDistribution: make(map[string]PlanStat),
		Notifications: map[string]int{
			"pending": notifCounts[notification.StatusPending],
			"sent":    notifCounts[notification.StatusSent],
			"failed":  notifCounts[notification.StatusFailed],
		},
		GeneratedAt: now,
	}

	churnStart := now.Add(-ChurnWindow)
	planCounts := make(map[tenant.Plan]int)
	paid := 0
	expiredTrials := 0
	churned := 0

	for _, t := range tenants {
		planCounts[t.Plan]++

		if t.Status == tenant.StatusActive {
			p.ActiveTenants++
			p.MRRCents += t.MRRCents
		}

		switch t.Plan {
		case tenant.PlanPro, tenant.PlanEnterprise:
			paid++
		case tenant.PlanTrial:
			if t.Status == tenant.StatusInactive {
				expiredTrials++
			}
		}

		if !t.DeactivatedAt.IsZero() && t.DeactivatedAt.After(churnStart) {
			churned++
		}
	}

	// Conversion: paid tenants over everyone who finished a trial,
	// whether they upgraded or expired out.
	p.ConversionPercent = wholePercent(paid, paid+expiredTrials)

	// Churn: deactivations inside the window over the tenants that
	// were active at the window's start (currently active plus the
	// ones that churned during it).
	p.ChurnPercent = wholePercent(churned, p.ActiveTenants+churned)

	for plan, count := range planCounts {
		p.PlanDistribution[string(plan)] = PlanStat{
			Count:   count,
			Percent: wholePercent(count, len(tenants)),
		}
	}
	return p
}

// wholePercent returns num/den as a whole percentage rounded to the
// nearest integer. A zero denominator yields 0, never an error.
func wholePercent(num, den int) int {
	if den == 0 {
		return 0
	}
	return int(math.Round(float64(num) / float64(den) * 100))
}
