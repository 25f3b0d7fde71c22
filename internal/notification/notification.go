// Package notification implements the notification store and its
// delivery state machine.
//
// A notification is one outbound message request tied to a business
// event. It starts pending, and ends sent on a successful delivery or
// failed once its retry budget is exhausted. Sent is terminal.
package notification

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUnknownTenant        = errors.New("tenant unknown or inactive")
	ErrRetryNotAllowed      = errors.New("retry not allowed")
)

// Type is the business event a notification carries.
type Type string

const (
	TypeSale     Type = "sale"
	TypeQuote    Type = "quote"
	TypePayment  Type = "payment"
	TypeReminder Type = "reminder"
)

// ValidType reports whether t is a known notification type.
func ValidType(t Type) bool {
	switch t {
	case TypeSale, TypeQuote, TypePayment, TypeReminder:
		return true
	}
	return false
}

// Status is a notification's delivery state.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Outcome classifies a single delivery attempt's result.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient_failure"
	OutcomePermanent Outcome = "permanent_failure"
)

// DefaultMaxAttempts caps delivery attempts per notification.
const DefaultMaxAttempts = 5

// Notification is one outbound message request. Records are kept
// forever for audit and metrics; they are never deleted.
type Notification struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	Type            Type      `json:"type"`
	ClientName      string    `json:"clientName"`
	Phone           string    `json:"phone"`
	AmountCents     int64     `json:"amountCents"`
	DocumentRef     string    `json:"documentRef,omitempty"`
	Status          Status    `json:"status"`
	AttemptCount    int       `json:"attemptCount"`
	LastError       string    `json:"lastError,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	LastAttemptedAt time.Time `json:"lastAttemptedAt,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Retryable reports whether the notification may still be attempted.
func (n *Notification) Retryable(maxAttempts int) bool {
	if n.Status == StatusSent {
		return false
	}
	return n.AttemptCount < maxAttempts
}

// CreateRequest is the ingestion payload mapped onto a notification.
type CreateRequest struct {
	Type        Type   `json:"type" binding:"required"`
	ClientName  string `json:"clientName" binding:"required"`
	Phone       string `json:"phone" binding:"required"`
	AmountCents int64  `json:"amountCents"`
	DocumentRef string `json:"documentRef"`
}

// Filter narrows notification listings. Zero values match everything.
type Filter struct {
	TenantID string
	Status   Status
}

// Matches reports whether n passes the filter.
func (f Filter) Matches(n *Notification) bool {
	if f.TenantID != "" && n.TenantID != f.TenantID {
		return false
	}
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	return true
}

// Store persists notification records.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	Update(ctx context.Context, n *Notification) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Notification, error)
	Count(ctx context.Context, f Filter) (int, error)
	// ListDeliverable returns notifications the scheduler may attempt:
	// pending, or failed with attempt_count below the cap. Oldest first
	// so new work does not starve retries.
	ListDeliverable(ctx context.Context, maxAttempts, limit int) ([]*Notification, error)
	// CountByStatus returns per-status totals in one consistent read.
	// An empty tenantID counts across all tenants.
	CountByStatus(ctx context.Context, tenantID string) (map[Status]int, error)
}
