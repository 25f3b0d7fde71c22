package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hub28/connect/internal/idgen"
	"github.com/hub28/connect/internal/metrics"
	"github.com/hub28/connect/internal/syncutil"
	"github.com/hub28/connect/internal/validation"
)

// TenantChecker validates that a tenant exists and can receive
// notifications. Implementations return ErrUnknownTenant for missing
// or inactive tenants.
type TenantChecker interface {
	CheckTenant(ctx context.Context, tenantID string) error
}

// EventPublisher receives notification state changes for the live feed.
type EventPublisher interface {
	PublishNotification(event string, n *Notification)
}

// Service provides notification business logic and owns the delivery
// state machine. All state transitions for one notification are
// serialized through a per-id lock, so duplicate acknowledgements from
// the transport cannot double-count attempts.
type Service struct {
	store       Store
	tenants     TenantChecker
	logger      *slog.Logger
	events      EventPublisher
	maxAttempts int
	locks       syncutil.ShardedMutex
}

// NewService creates a new notification service.
func NewService(store Store, tenants TenantChecker, maxAttempts int, logger *slog.Logger) *Service {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		store:       store,
		tenants:     tenants,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// SetEvents attaches an optional live-feed publisher.
func (s *Service) SetEvents(e EventPublisher) { s.events = e }

// MaxAttempts returns the per-notification attempt cap.
func (s *Service) MaxAttempts() int { return s.maxAttempts }

// Create ingests an inbound event as a pending notification. The
// owning tenant must exist and be active.
func (s *Service) Create(ctx context.Context, tenantID string, req CreateRequest) (*Notification, error) {
	phone := validation.NormalizePhone(req.Phone)
	clientName := validation.SanitizeString(req.ClientName, validation.MaxStringLength)
	documentRef := validation.SanitizeString(req.DocumentRef, validation.MaxStringLength)

	if errs := validation.Validate(
		validation.Required("clientName", clientName),
		validation.Required("phone", phone),
		validation.ValidPhone("phone", phone),
		validation.NonNegativeCents("amountCents", req.AmountCents),
	); len(errs) > 0 {
		return nil, errs
	}
	if !ValidType(req.Type) {
		return nil, validation.Errors{{Field: "type", Message: "must be sale, quote, payment or reminder"}}
	}

	if err := s.tenants.CheckTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	now := time.Now()
	n := &Notification{
		ID:          idgen.WithPrefix("ntf_"),
		TenantID:    tenantID,
		Type:        req.Type,
		ClientName:  clientName,
		Phone:       phone,
		AmountCents: req.AmountCents,
		DocumentRef: documentRef,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	metrics.NotificationsTotal.WithLabelValues(string(n.Type)).Inc()
	s.logger.Info("notification created",
		"notification_id", n.ID, "tenant_id", tenantID, "type", n.Type)
	if s.events != nil {
		s.events.PublishNotification("notification_created", n)
	}
	return n, nil
}

// Get returns a notification by ID.
func (s *Service) Get(ctx context.Context, id string) (*Notification, error) {
	return s.store.Get(ctx, id)
}

// List returns notifications matching the filter, newest first, plus
// the filtered total.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Notification, int, error) {
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

// RecordAttemptResult applies a delivery attempt's outcome.
//
// Success moves the notification to sent. A notification already sent
// is left untouched so duplicate acknowledgements are harmless.
// A transient failure increments attempt_count and leaves the
// notification failed, retryable while under the cap. A permanent
// failure exhausts the cap immediately.
func (s *Service) RecordAttemptResult(ctx context.Context, id string, outcome Outcome, attemptErr string) (*Notification, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Sent is terminal. Late or duplicate outcomes are no-ops.
	if n.Status == StatusSent {
		return n, nil
	}

	now := time.Now()
	n.LastAttemptedAt = now

	switch outcome {
	case OutcomeSuccess:
		n.Status = StatusSent
		n.AttemptCount++
		n.LastError = ""
	case OutcomeTransient:
		if n.AttemptCount < s.maxAttempts {
			n.AttemptCount++
		}
		n.Status = StatusFailed
		n.LastError = attemptErr
	case OutcomePermanent:
		n.AttemptCount = s.maxAttempts
		n.Status = StatusFailed
		n.LastError = attemptErr
	default:
		return nil, fmt.Errorf("unknown attempt outcome %q", outcome)
	}

	if err := s.store.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	event := "notification_sent"
	if n.Status == StatusFailed {
		event = "notification_failed"
	}
	s.logger.Info("attempt recorded",
		"notification_id", n.ID, "outcome", outcome,
		"status", n.Status, "attempt_count", n.AttemptCount)
	if s.events != nil {
		s.events.PublishNotification(event, n)
	}
	return n, nil
}

// ManualRetry re-arms a failed notification for immediate delivery.
// Allowed only while failed and under the attempt cap; attempt_count
// is preserved.
func (s *Service) ManualRetry(ctx context.Context, id string) (*Notification, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if n.Status != StatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrRetryNotAllowed, n.Status)
	}
	if n.AttemptCount >= s.maxAttempts {
		return nil, fmt.Errorf("%w: attempt cap exhausted", ErrRetryNotAllowed)
	}

	// Clearing last_attempted_at makes the notification immediately
	// eligible without touching its attempt history.
	n.LastAttemptedAt = time.Time{}
	if err := s.store.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("manual retry: %w", err)
	}

	metrics.ManualRetriesTotal.Inc()
	s.logger.Info("manual retry requested", "notification_id", n.ID, "attempt_count", n.AttemptCount)
	return n, nil
}

// ListDeliverable returns work for the retry scheduler.
func (s *Service) ListDeliverable(ctx context.Context, limit int) ([]*Notification, error) {
	return s.store.ListDeliverable(ctx, s.maxAttempts, limit)
}

// CountByStatus returns platform-wide per-status totals.
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.store.CountByStatus(ctx, "")
}

// CountByStatusForTenant returns one tenant's per-status totals in a
// single read.
func (s *Service) CountByStatusForTenant(ctx context.Context, tenantID string) (map[Status]int, error) {
	return s.store.CountByStatus(ctx, tenantID)
}
