package tenant

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hub28/connect/internal/validation"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store, slog.Default())
	return svc, store
}

func TestRegisterStartsTrial(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	before := time.Now()
	ten, err := svc.Register(ctx, "Acme Ltda", "+55 11 99999-0000")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if ten.Plan != PlanTrial {
		t.Errorf("plan = %s, want trial", ten.Plan)
	}
	if ten.Status != StatusActive {
		t.Errorf("status = %s, want active", ten.Status)
	}
	if ten.MRRCents != 0 {
		t.Errorf("mrr = %d, want 0", ten.MRRCents)
	}
	if ten.APIKey == "" {
		t.Error("expected an api key")
	}
	if ten.WhatsAppNumber != "+5511999990000" {
		t.Errorf("number not normalized: %s", ten.WhatsAppNumber)
	}

	wantEnd := before.Add(TrialPeriod)
	if ten.TrialEndsAt.Before(wantEnd.Add(-time.Minute)) || ten.TrialEndsAt.After(wantEnd.Add(time.Minute)) {
		t.Errorf("trial_ends_at = %v, want ~%v", ten.TrialEndsAt, wantEnd)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name   string
		tName  string
		number string
	}{
		{"empty name", "", "+5511999990000"},
		{"empty number", "Acme", ""},
		{"bad number", "Acme", "not-a-phone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.tName, tc.number)
			var verrs validation.Errors
			if !errors.As(err, &verrs) {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}

func TestRegisterRejectsDuplicateActiveNumber(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "First", "+5511999990000"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := svc.Register(ctx, "Second", "+55 11 99999 0000")
	if !errors.Is(err, ErrNumberInUse) {
		t.Fatalf("want ErrNumberInUse, got %v", err)
	}
}

func TestRegisterAllowsNumberReuseAfterDeactivation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Register(ctx, "First", "+5511999990000")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.SetStatus(ctx, first.ID, StatusInactive); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := svc.Register(ctx, "Second", "+5511999990000"); err != nil {
		t.Fatalf("re-register after deactivation failed: %v", err)
	}
}

func TestUpgradeTransitions(t *testing.T) {
	cases := []struct {
		from    Plan
		to      Plan
		allowed bool
	}{
		{PlanTrial, PlanPro, true},
		{PlanTrial, PlanEnterprise, true},
		{PlanPro, PlanEnterprise, true},
		{PlanPro, PlanTrial, false},
		{PlanPro, PlanPro, false},
		{PlanEnterprise, PlanPro, false},
		{PlanEnterprise, PlanTrial, false},
		{PlanTrial, PlanTrial, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			svc, store := newTestService()
			ctx := context.Background()

			ten, err := svc.Register(ctx, "Acme", "+5511999990000")
			if err != nil {
				t.Fatalf("register failed: %v", err)
			}
			if tc.from != PlanTrial {
				ten.Plan = tc.from
				ten.MRRCents = PriceCents(tc.from)
				ten.TrialEndsAt = time.Time{}
				if err := store.Update(ctx, ten); err != nil {
					t.Fatalf("seed plan: %v", err)
				}
			}

			result, err := svc.Upgrade(ctx, ten.ID, tc.to)
			if !tc.allowed {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("want ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("upgrade failed: %v", err)
			}
			if result.Tenant.Plan != tc.to {
				t.Errorf("plan = %s, want %s", result.Tenant.Plan, tc.to)
			}
			if result.Tenant.MRRCents != PriceCents(tc.to) {
				t.Errorf("mrr = %d, want %d", result.Tenant.MRRCents, PriceCents(tc.to))
			}
			if !result.Tenant.TrialEndsAt.IsZero() {
				t.Error("trial_ends_at should be cleared after upgrade")
			}
		})
	}
}

func TestUpgradeUnknownTenant(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Upgrade(context.Background(), "ten_missing", PlanPro)
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("want ErrTenantNotFound, got %v", err)
	}
}

func TestExpireTrialsDeactivatesOverdue(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	ten, err := svc.Register(ctx, "Acme", "+5511999990000")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// Not yet due.
	count, err := svc.ExpireTrials(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired %d tenants before trial end", count)
	}

	// Past the trial window.
	after := ten.TrialEndsAt.Add(time.Second)
	count, err = svc.ExpireTrials(ctx, after)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expired = %d, want 1", count)
	}

	got, err := store.Get(ctx, ten.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusInactive {
		t.Errorf("status = %s, want inactive", got.Status)
	}
	if got.DeactivatedAt.IsZero() {
		t.Error("deactivated_at not stamped")
	}

	// Idempotent: re-running has no additional effect.
	count, err = svc.ExpireTrials(ctx, after)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("second sweep expired %d tenants, want 0", count)
	}
}

func TestExpireTrialsDoesNotRevertUpgrade(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	ten, err := svc.Register(ctx, "Acme", "+5511999990000")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// Upgrade lands before the sweep's write.
	if _, err := svc.Upgrade(ctx, ten.ID, PlanPro); err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}

	count, err := svc.ExpireTrials(ctx, ten.TrialEndsAt.Add(time.Second))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("sweep expired an upgraded tenant")
	}

	got, err := store.Get(ctx, ten.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusActive || got.Plan != PlanPro {
		t.Errorf("tenant = %s/%s, want active/pro", got.Status, got.Plan)
	}
}

func TestExpireTrialRecheckUnderRace(t *testing.T) {
	// Simulates the sweep reading a trial tenant, then an upgrade
	// committing before the sweep's write. The conditional write must
	// lose to the upgrade.
	svc, store := newTestService()
	ctx := context.Background()

	ten, err := svc.Register(ctx, "Acme", "+5511999990000")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// The sweep has already listed this tenant as a candidate.
	candidates, err := store.ListExpiredTrials(ctx, ten.TrialEndsAt.Add(time.Second), 10)
	if err != nil || len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d err=%v", len(candidates), err)
	}

	// Upgrade commits between the read and the write.
	if _, err := svc.Upgrade(ctx, ten.ID, PlanEnterprise); err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}

	ok, err := store.ExpireTrial(ctx, ten.ID, time.Now())
	if err != nil {
		t.Fatalf("ExpireTrial failed: %v", err)
	}
	if ok {
		t.Fatal("ExpireTrial applied despite the committed upgrade")
	}

	got, _ := store.Get(ctx, ten.ID)
	if got.Status != StatusActive || got.Plan != PlanEnterprise {
		t.Errorf("tenant = %s/%s, want active/enterprise", got.Status, got.Plan)
	}
}

func TestSetStatusStampsDeactivation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ten, err := svc.Register(ctx, "Acme", "+5511999990000")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ten, err = svc.SetStatus(ctx, ten.ID, StatusInactive)
	if err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if ten.DeactivatedAt.IsZero() {
		t.Error("deactivated_at not stamped")
	}

	ten, err = svc.SetStatus(ctx, ten.ID, StatusActive)
	if err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	if !ten.DeactivatedAt.IsZero() {
		t.Error("deactivated_at should be cleared on reactivation")
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ten, err := svc.Register(ctx, "Acme", "+5511999990000")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := svc.Authenticate(ctx, ten.APIKey)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if got.ID != ten.ID {
		t.Errorf("authenticated wrong tenant: %s", got.ID)
	}

	if _, err := svc.Authenticate(ctx, "bogus"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("want ErrInvalidAPIKey, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("want ErrInvalidAPIKey for empty key, got %v", err)
	}
}
