package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hub28/connect/internal/notification"
	"github.com/hub28/connect/internal/tenant"
)

func mkTenant(plan tenant.Plan, status tenant.Status, mrrCents int64) *tenant.Tenant {
	return &tenant.Tenant{Plan: plan, Status: status, MRRCents: mrrCents}
}

// allTenantsCounter narrows the store's tenant-scoped CountByStatus to
// the platform-wide NotificationSource shape, as notification.Service
// does in production.
type allTenantsCounter struct{ store *notification.MemoryStore }

func (a allTenantsCounter) CountByStatus(ctx context.Context) (map[notification.Status]int, error) {
	return a.store.CountByStatus(ctx, "")
}

func TestComputeEmptyPlatform(t *testing.T) {
	p := Compute(nil, nil, time.Now())

	assert.Equal(t, int64(0), p.MRRCents)
	assert.Equal(t, 0, p.ConversionPercent, "zero denominator must yield 0")
	assert.Equal(t, 0, p.ChurnPercent, "zero denominator must yield 0")
	assert.Empty(t, p.PlanDistribution)
	assert.Equal(t, 0, p.Notifications["pending"])
}

func TestComputeMRRCountsOnlyActive(t *testing.T) {
	tenants := []*tenant.Tenant{
		mkTenant(tenant.PlanPro, tenant.StatusActive, 9700),
		mkTenant(tenant.PlanEnterprise, tenant.StatusActive, 29700),
		mkTenant(tenant.PlanPro, tenant.StatusInactive, 9700), // churned, excluded
		mkTenant(tenant.PlanTrial, tenant.StatusActive, 0),
	}
	p := Compute(tenants, nil, time.Now())
	assert.Equal(t, int64(39400), p.MRRCents)
	assert.Equal(t, 3, p.ActiveTenants)
	assert.Equal(t, 4, p.TotalTenants)
}

func TestComputeConversion(t *testing.T) {
	// 2 paid, 2 expired trials: 2/4 = 50%.
	tenants := []*tenant.Tenant{
		mkTenant(tenant.PlanPro, tenant.StatusActive, 9700),
		mkTenant(tenant.PlanEnterprise, tenant.StatusActive, 29700),
		mkTenant(tenant.PlanTrial, tenant.StatusInactive, 0),
		mkTenant(tenant.PlanTrial, tenant.StatusInactive, 0),
		// Active trial still in progress: not in the denominator.
		mkTenant(tenant.PlanTrial, tenant.StatusActive, 0),
	}
	p := Compute(tenants, nil, time.Now())
	assert.Equal(t, 50, p.ConversionPercent)

	// Rounding: 1 paid, 2 expired -> 1/3 = 33%.
	p = Compute(tenants[1:], nil, time.Now())
	assert.Equal(t, 33, p.ConversionPercent)

	// Rounds up: 2 paid, 1 expired -> 2/3 = 67%.
	p = Compute([]*tenant.Tenant{
		mkTenant(tenant.PlanPro, tenant.StatusActive, 9700),
		mkTenant(tenant.PlanPro, tenant.StatusActive, 9700),
		mkTenant(tenant.PlanTrial, tenant.StatusInactive, 0),
	}, nil, time.Now())
	assert.Equal(t, 67, p.ConversionPercent)
}

func TestComputeChurnTrailingWindow(t *testing.T) {
	now := time.Now()
	recent := mkTenant(tenant.PlanPro, tenant.StatusInactive, 0)
	recent.DeactivatedAt = now.Add(-10 * 24 * time.Hour)
	old := mkTenant(tenant.PlanPro, tenant.StatusInactive, 0)
	old.DeactivatedAt = now.Add(-60 * 24 * time.Hour)

	tenants := []*tenant.Tenant{
		mkTenant(tenant.PlanPro, tenant.StatusActive, 9700),
		mkTenant(tenant.PlanPro, tenant.StatusActive, 9700),
		mkTenant(tenant.PlanEnterprise, tenant.StatusActive, 29700),
		recent,
		old,
	}

	// 1 churned in window, 3 active + 1 churned = 4 at window start: 25%.
	p := Compute(tenants, nil, now)
	assert.Equal(t, 25, p.ChurnPercent)
}

func TestComputePlanDistribution(t *testing.T) {
	tenants := []*tenant.Tenant{
		mkTenant(tenant.PlanTrial, tenant.StatusActive, 0),
		mkTenant(tenant.PlanTrial, tenant.StatusActive, 0),
		mkTenant(tenant.PlanPro, tenant.StatusActive, 9700),
		mkTenant(tenant.PlanEnterprise, tenant.StatusActive, 29700),
	}
	p := Compute(tenants, nil, time.Now())

	assert.Equal(t, PlanStat{Count: 2, Percent: 50}, p.PlanDistribution["trial"])
	assert.Equal(t, PlanStat{Count: 1, Percent: 25}, p.PlanDistribution["pro"])
	assert.Equal(t, PlanStat{Count: 1, Percent: 25}, p.PlanDistribution["enterprise"])
}

func TestComputeNotificationCounts(t *testing.T) {
	counts := map[notification.Status]int{
		notification.StatusPending: 3,
		notification.StatusSent:    10,
		notification.StatusFailed:  2,
	}
	p := Compute(nil, counts, time.Now())
	assert.Equal(t, 3, p.Notifications["pending"])
	assert.Equal(t, 10, p.Notifications["sent"])
	assert.Equal(t, 2, p.Notifications["failed"])
}

func TestPlatformIsDeterministic(t *testing.T) {
	// Recomputing over the same stores with no intervening mutation
	// must return identical figures.
	tenantStore := tenant.NewMemoryStore()
	notifStore := notification.NewMemoryStore()
	ctx := context.Background()

	for i, plan := range []tenant.Plan{tenant.PlanPro, tenant.PlanEnterprise, tenant.PlanTrial} {
		ten := &tenant.Tenant{
			ID:             string(rune('a' + i)),
			Name:           "T",
			WhatsAppNumber: "+551199999000" + string(rune('0'+i)),
			Plan:           plan,
			Status:         tenant.StatusActive,
			MRRCents:       tenant.PriceCents(plan),
			CreatedAt:      time.Now(),
		}
		require.NoError(t, tenantStore.Create(ctx, ten))
	}

	svc := NewService(tenantStore, allTenantsCounter{notifStore})
	now := time.Now()

	first, err := svc.Platform(ctx, now)
	require.NoError(t, err)
	second, err := svc.Platform(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, first.MRRCents, second.MRRCents)
	assert.Equal(t, first.ConversionPercent, second.ConversionPercent)
	assert.Equal(t, first.ChurnPercent, second.ChurnPercent)
	assert.Equal(t, first.PlanDistribution, second.PlanDistribution)
}
