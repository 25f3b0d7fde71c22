// Package tenant implements the tenant registry for Connect.
//
// A tenant is one customer organization with its own WhatsApp channel,
// plan, and notification history. Tenants start on a 7-day trial and
// either upgrade to a paid plan or expire to inactive.
package tenant

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrNumberInUse       = errors.New("whatsapp number already bound to an active tenant")
	ErrInvalidTransition = errors.New("plan transition not allowed")
	ErrInvalidAPIKey     = errors.New("invalid api key")
)

// Plan is a tenant's subscription tier.
type Plan string

const (
	PlanTrial      Plan = "trial"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// ValidPlan reports whether p is a known plan.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanTrial, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Status is a tenant's lifecycle state. Tenants are never deleted,
// only marked inactive.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// TrialPeriod is how long a new tenant's trial lasts before the
// expiry sweep deactivates it.
const TrialPeriod = 7 * 24 * time.Hour

// Tenant is one customer account.
type Tenant struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	WhatsAppNumber   string    `json:"whatsappNumber"`
	APIKey           string    `json:"-"`
	Plan             Plan      `json:"plan"`
	Status           Status    `json:"status"`
	MRRCents         int64     `json:"mrrCents"`
	StripeCustomerID string    `json:"stripeCustomerId,omitempty"`
	TrialEndsAt      time.Time `json:"trialEndsAt,omitempty"`
	DeactivatedAt    time.Time `json:"deactivatedAt,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// OnTrial reports whether the tenant is still on its trial plan.
func (t *Tenant) OnTrial() bool { return t.Plan == PlanTrial }

// TrialExpired reports whether the tenant's trial window has passed.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return t.Plan == PlanTrial && !t.TrialEndsAt.IsZero() && !t.TrialEndsAt.After(now)
}

// RegisterRequest is the request body for tenant registration.
type RegisterRequest struct {
	Name           string `json:"name" binding:"required"`
	WhatsAppNumber string `json:"whatsappNumber" binding:"required"`
}

// UpgradeRequest is the request body for a plan upgrade.
type UpgradeRequest struct {
	Plan Plan `json:"plan" binding:"required"`
}

// StatusRequest is the request body for an admin status override.
type StatusRequest struct {
	Status Status `json:"status" binding:"required"`
}

// Filter narrows tenant listings. Zero values match everything.
type Filter struct {
	Plan   Plan
	Status Status
}

// Matches reports whether t passes the filter.
func (f Filter) Matches(t *Tenant) bool {
	if f.Plan != "" && t.Plan != f.Plan {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// Store persists tenant records.
type Store interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	// GetActiveByNumber returns the active tenant bound to a WhatsApp
	// number, or ErrTenantNotFound.
	GetActiveByNumber(ctx context.Context, number string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Tenant, error)
	Count(ctx context.Context, f Filter) (int, error)
	// ListExpiredTrials returns active trial tenants whose trial_ends_at
	// is at or before now.
	ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]*Tenant, error)
	// ExpireTrial deactivates a tenant only if it is still an active
	// trial at write time. Returns false when the tenant was upgraded
	// or deactivated between the sweep's read and this write.
	ExpireTrial(ctx context.Context, id string, now time.Time) (bool, error)
	// Snapshot returns a point-in-time copy of every tenant record for
	// aggregate computation.
	Snapshot(ctx context.Context) ([]*Tenant, error)
}
