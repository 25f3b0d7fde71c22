package notification_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hub28/connect/internal/notification"
	"github.com/hub28/connect/internal/tenant"
	"github.com/hub28/connect/internal/testutil"
)

func seedPGTenant(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := tenant.NewPostgresStore(db).Create(context.Background(), &tenant.Tenant{
		ID:             id,
		Name:           "Oficina " + id,
		WhatsAppNumber: "+55119" + id,
		APIKey:         "key_" + id,
		Plan:           tenant.PlanTrial,
		Status:         tenant.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func pgNotification(id, tenantID string, createdAt time.Time) *notification.Notification {
	return &notification.Notification{
		ID:          id,
		TenantID:    tenantID,
		Type:        notification.TypeSale,
		ClientName:  "Maria Silva",
		Phone:       "+5511988887777",
		AmountCents: 125000,
		DocumentRef: "NF-4412",
		Status:      notification.StatusPending,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestPostgresStore_NotificationCRUD(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := notification.NewPostgresStore(db)
	ctx := context.Background()
	seedPGTenant(t, db, "10000001")

	n := pgNotification("ntf_pg1", "10000001", time.Now().UTC())
	if err := store.Create(ctx, n); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "ntf_pg1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != notification.StatusPending || got.AmountCents != 125000 {
		t.Fatalf("Get returned %+v", got)
	}
	if !got.LastAttemptedAt.IsZero() {
		t.Fatal("LastAttemptedAt should be zero before any attempt")
	}

	got.Status = notification.StatusFailed
	got.AttemptCount = 2
	got.LastError = "gateway timeout"
	got.LastAttemptedAt = time.Now().UTC()
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded, err := store.Get(ctx, "ntf_pg1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if reloaded.Status != notification.StatusFailed || reloaded.AttemptCount != 2 || reloaded.LastError != "gateway timeout" {
		t.Fatalf("reloaded = %+v", reloaded)
	}
	if reloaded.LastAttemptedAt.IsZero() {
		t.Fatal("LastAttemptedAt not persisted")
	}

	if _, err := store.Get(ctx, "ntf_missing"); !errors.Is(err, notification.ErrNotificationNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotificationNotFound", err)
	}
}

func TestPostgresStore_ListDeliverable(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := notification.NewPostgresStore(db)
	ctx := context.Background()
	seedPGTenant(t, db, "10000001")

	base := time.Now().UTC().Add(-time.Hour)

	oldest := pgNotification("ntf_oldest", "10000001", base)
	newest := pgNotification("ntf_newest", "10000001", base.Add(time.Minute))
	sent := pgNotification("ntf_sent", "10000001", base.Add(2*time.Minute))
	sent.Status = notification.StatusSent
	sent.AttemptCount = 1
	retryable := pgNotification("ntf_retry", "10000001", base.Add(3*time.Minute))
	retryable.Status = notification.StatusFailed
	retryable.AttemptCount = 2
	exhausted := pgNotification("ntf_done", "10000001", base.Add(4*time.Minute))
	exhausted.Status = notification.StatusFailed
	exhausted.AttemptCount = 5

	for _, n := range []*notification.Notification{oldest, newest, sent, retryable, exhausted} {
		if err := store.Create(ctx, n); err != nil {
			t.Fatalf("Create %s: %v", n.ID, err)
		}
	}

	work, err := store.ListDeliverable(ctx, 5, 10)
	if err != nil {
		t.Fatalf("ListDeliverable: %v", err)
	}
	if len(work) != 3 {
		t.Fatalf("deliverable = %d, want 3", len(work))
	}
	// Oldest first so retries are not starved by new work.
	if work[0].ID != "ntf_oldest" || work[1].ID != "ntf_newest" || work[2].ID != "ntf_retry" {
		t.Fatalf("order = %s, %s, %s", work[0].ID, work[1].ID, work[2].ID)
	}
}

func TestPostgresStore_CountByStatus(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := notification.NewPostgresStore(db)
	ctx := context.Background()
	seedPGTenant(t, db, "10000001")
	seedPGTenant(t, db, "10000002")

	base := time.Now().UTC()
	for i, status := range []notification.Status{
		notification.StatusPending,
		notification.StatusPending,
		notification.StatusSent,
		notification.StatusFailed,
	} {
		n := pgNotification("ntf_"+string(rune('a'+i)), "10000001", base.Add(time.Duration(i)*time.Second))
		n.Status = status
		if err := store.Create(ctx, n); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	other := pgNotification("ntf_other", "10000002", base)
	other.Status = notification.StatusSent
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("Create other tenant: %v", err)
	}

	counts, err := store.CountByStatus(ctx, "")
	if err != nil {
		t.Fatalf("CountByStatus all: %v", err)
	}
	if counts[notification.StatusPending] != 2 || counts[notification.StatusSent] != 2 || counts[notification.StatusFailed] != 1 {
		t.Fatalf("all-tenant counts = %+v", counts)
	}

	scoped, err := store.CountByStatus(ctx, "10000001")
	if err != nil {
		t.Fatalf("CountByStatus scoped: %v", err)
	}
	if scoped[notification.StatusPending] != 2 || scoped[notification.StatusSent] != 1 || scoped[notification.StatusFailed] != 1 {
		t.Fatalf("scoped counts = %+v", scoped)
	}
}

