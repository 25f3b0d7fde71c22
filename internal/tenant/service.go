package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hub28/connect/internal/idgen"
	"github.com/hub28/connect/internal/metrics"
	"github.com/hub28/connect/internal/validation"
)

// BillingProvider links tenants to the payment processor. Optional;
// when unset, upgrades take effect without a checkout step.
type BillingProvider interface {
	// EnsureCustomer creates or returns the processor-side customer for
	// a tenant and returns its ID.
	EnsureCustomer(ctx context.Context, t *Tenant) (string, error)
	// CheckoutURL returns a hosted checkout link for the given plan.
	CheckoutURL(ctx context.Context, t *Tenant, plan Plan) (string, error)
}

// EventPublisher receives tenant lifecycle events for the live feed.
type EventPublisher interface {
	PublishTenant(event string, t *Tenant)
}

// Service provides tenant registry business logic.
type Service struct {
	store   Store
	logger  *slog.Logger
	billing BillingProvider
	events  EventPublisher
	trial   time.Duration
}

// NewService creates a new tenant service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		trial:  TrialPeriod,
	}
}

// SetBilling attaches an optional billing provider.
func (s *Service) SetBilling(b BillingProvider) { s.billing = b }

// SetEvents attaches an optional live-feed publisher.
func (s *Service) SetEvents(e EventPublisher) { s.events = e }

// SetTrialPeriod overrides the default trial length.
func (s *Service) SetTrialPeriod(d time.Duration) {
	if d > 0 {
		s.trial = d
	}
}

// Register creates a tenant on the trial plan with a fresh API key.
func (s *Service) Register(ctx context.Context, name, whatsappNumber string) (*Tenant, error) {
	number := validation.NormalizePhone(whatsappNumber)
	name = validation.SanitizeString(name, validation.MaxStringLength)

	if errs := validation.Validate(
		validation.Required("name", name),
		validation.Required("whatsappNumber", number),
		validation.ValidPhone("whatsappNumber", number),
	); len(errs) > 0 {
		return nil, errs
	}

	if _, err := s.store.GetActiveByNumber(ctx, number); err == nil {
		return nil, ErrNumberInUse
	}

	now := time.Now()
	t := &Tenant{
		ID:             idgen.WithPrefix("ten_"),
		Name:           name,
		WhatsAppNumber: number,
		APIKey:         idgen.Hex(24),
		Plan:           PlanTrial,
		Status:         StatusActive,
		MRRCents:       0,
		TrialEndsAt:    now.Add(s.trial),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tenant registered", "tenant_id", t.ID, "trial_ends_at", t.TrialEndsAt)
	if s.events != nil {
		s.events.PublishTenant("tenant_registered", t)
	}
	return t, nil
}

// Get returns a tenant by ID.
func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	return s.store.Get(ctx, id)
}

// Authenticate resolves an API key to its tenant.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*Tenant, error) {
	if apiKey == "" {
		return nil, ErrInvalidAPIKey
	}
	t, err := s.store.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	return t, nil
}

// List returns tenants matching the filter, newest first, plus the
// filtered total.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Tenant, int, error) {
	items, err := s.store.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpgradeResult carries the updated tenant plus an optional hosted
// checkout link when billing is configured.
type UpgradeResult struct {
	Tenant      *Tenant `json:"tenant"`
	CheckoutURL string  `json:"checkoutUrl,omitempty"`
}

// Upgrade transitions a tenant to a higher plan. Allowed moves are
// trial to pro, trial to enterprise, and pro to enterprise. On success
// the tenant's MRR is set from the price table and trial_ends_at is
// cleared.
func (s *Service) Upgrade(ctx context.Context, id string, newPlan Plan) (*UpgradeResult, error) {
	if !ValidPlan(newPlan) {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidTransition, newPlan)
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(t.Plan, newPlan) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Plan, newPlan)
	}

	result := &UpgradeResult{}
	if s.billing != nil {
		customerID, err := s.billing.EnsureCustomer(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("billing customer: %w", err)
		}
		t.StripeCustomerID = customerID

		url, err := s.billing.CheckoutURL(ctx, t, newPlan)
		if err != nil {
			return nil, fmt.Errorf("billing checkout: %w", err)
		}
		result.CheckoutURL = url
	}

	t.Plan = newPlan
	t.MRRCents = PriceCents(newPlan)
	t.TrialEndsAt = time.Time{}

	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	metrics.PlanUpgradesTotal.WithLabelValues(string(newPlan)).Inc()
	s.logger.Info("tenant upgraded", "tenant_id", t.ID, "plan", newPlan, "mrr_cents", t.MRRCents)
	if s.events != nil {
		s.events.PublishTenant("tenant_upgraded", t)
	}

	result.Tenant = t
	return result, nil
}

// SetStatus is the administrative status override. Deactivation stamps
// deactivated_at for churn accounting; reactivation clears it.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Tenant, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, validation.Errors{{Field: "status", Message: "must be active or inactive"}}
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == status {
		return t, nil
	}

	t.Status = status
	if status == StatusInactive {
		t.DeactivatedAt = time.Now()
	} else {
		t.DeactivatedAt = time.Time{}
	}

	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tenant status changed", "tenant_id", t.ID, "status", status)
	if s.events != nil {
		s.events.PublishTenant("tenant_status_changed", t)
	}
	return t, nil
}

// ExpireTrials deactivates trial tenants whose window has passed.
// The conditional store write re-checks plan and status so a
// concurrent upgrade is never reverted. Safe to re-run; already
// expired tenants are not visible to the scan.
func (s *Service) ExpireTrials(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.store.ListExpiredTrials(ctx, now, 500)
	if err != nil {
		return 0, fmt.Errorf("list expired trials: %w", err)
	}

	expired := 0
	for _, t := range candidates {
		ok, err := s.store.ExpireTrial(ctx, t.ID, now)
		if err != nil {
			s.logger.Warn("failed to expire trial", "tenant_id", t.ID, "error", err)
			continue
		}
		if !ok {
			// Upgraded or deactivated between read and write.
			continue
		}
		expired++
		metrics.TrialExpirationsTotal.Inc()
		if s.events != nil {
			t.Status = StatusInactive
			t.DeactivatedAt = now
			s.events.PublishTenant("trial_expired", t)
		}
	}
	return expired, nil
}
