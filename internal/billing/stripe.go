// Package billing links tenants to Stripe for paid-plan checkout.
package billing

import (
	"context"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v81"
	stripeclient "github.com/stripe/stripe-go/v81/client"

	"github.com/hub28/connect/internal/tenant"
)

// Compile-time check that StripeProvider satisfies the tenant hook.
var _ tenant.BillingProvider = (*StripeProvider)(nil)

// StripeProvider creates Stripe customers for tenants and hosted
// checkout sessions for plan upgrades.
type StripeProvider struct {
	client   *stripeclient.API
	priceIDs map[tenant.Plan]string
	baseURL  string
	logger   *slog.Logger
}

// NewStripeProvider creates a provider using the given API key and
// per-plan price IDs. baseURL is where checkout redirects land.
func NewStripeProvider(apiKey, proPriceID, enterprisePriceID, baseURL string, logger *slog.Logger) *StripeProvider {
	sc := &stripeclient.API{}
	sc.Init(apiKey, nil)
	return &StripeProvider{
		client: sc,
		priceIDs: map[tenant.Plan]string{
			tenant.PlanPro:        proPriceID,
			tenant.PlanEnterprise: enterprisePriceID,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// EnsureCustomer returns the tenant's Stripe customer ID, creating the
// customer on first use.
func (p *StripeProvider) EnsureCustomer(ctx context.Context, t *tenant.Tenant) (string, error) {
	if t.StripeCustomerID != "" {
		return t.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(t.Name),
		Metadata: map[string]string{
			"tenant_id":       t.ID,
			"whatsapp_number": t.WhatsAppNumber,
		},
	}
	cust, err := p.client.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	p.logger.Info("stripe customer created", "tenant_id", t.ID, "customer_id", cust.ID)
	return cust.ID, nil
}

// CheckoutURL creates a subscription checkout session for the plan.
func (p *StripeProvider) CheckoutURL(ctx context.Context, t *tenant.Tenant, plan tenant.Plan) (string, error) {
	priceID := p.priceIDs[plan]
	if priceID == "" {
		return "", fmt.Errorf("no price configured for plan %s", plan)
	}

	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.baseURL + "/billing/success"),
		CancelURL:  stripe.String(p.baseURL + "/billing/cancel"),
	}
	if t.StripeCustomerID != "" {
		params.Customer = stripe.String(t.StripeCustomerID)
	} else {
		params.ClientReferenceID = stripe.String(t.ID)
	}
	params.AddMetadata("tenant_id", t.ID)
	params.AddMetadata("plan", string(plan))

	sess, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	p.logger.Info("checkout session created", "tenant_id", t.ID, "plan", plan)
	return sess.URL, nil
}
