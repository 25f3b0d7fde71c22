package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hub28/connect/internal/idgen"
	"github.com/hub28/connect/internal/validation"
)

// knownTypes mirrors the notification types that can carry a template.
var knownTypes = map[string]bool{
	"sale": true, "quote": true, "payment": true, "reminder": true,
}

// Service provides template business logic.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new template service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// BodyFor returns the message body to render for a tenant and type:
// the tenant's active custom template, or the default.
func (s *Service) BodyFor(ctx context.Context, tenantID, notificationType string) string {
	t, err := s.store.Get(ctx, tenantID, notificationType)
	if err != nil || !t.Active {
		return DefaultBody(notificationType)
	}
	return t.Body
}

// RenderMessage renders the outgoing text for one notification.
func (s *Service) RenderMessage(ctx context.Context, tenantID, notificationType, clientName string, amountCents int64, documentRef string) string {
	return Render(s.BodyFor(ctx, tenantID, notificationType), clientName, amountCents, documentRef)
}

// Set creates or replaces a tenant's template for a type.
func (s *Service) Set(ctx context.Context, tenantID, notificationType, body string, active bool) (*Template, error) {
	if !knownTypes[notificationType] {
		return nil, validation.Errors{{Field: "type", Message: "must be sale, quote, payment or reminder"}}
	}
	body = validation.SanitizeString(body, validation.MaxStringLength)
	if errs := validation.Validate(
		validation.Required("body", body),
	); len(errs) > 0 {
		return nil, errs
	}

	t := &Template{
		ID:       idgen.WithPrefix("tpl_"),
		TenantID: tenantID,
		Type:     notificationType,
		Body:     body,
		Active:   active,
	}
	if err := s.store.Upsert(ctx, t); err != nil {
		return nil, fmt.Errorf("set template: %w", err)
	}

	s.logger.Info("template set", "tenant_id", tenantID, "type", notificationType, "active", active)
	return t, nil
}

// List returns every template a tenant configured, filling in defaults
// for types without one so the API always shows the effective set.
func (s *Service) List(ctx context.Context, tenantID string) ([]*Template, error) {
	custom, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrTemplateNotFound) {
		return nil, err
	}

	byType := make(map[string]*Template, len(custom))
	for _, t := range custom {
		byType[t.Type] = t
	}

	result := make([]*Template, 0, len(knownTypes))
	for _, typ := range []string{"payment", "quote", "reminder", "sale"} {
		if t, ok := byType[typ]; ok {
			result = append(result, t)
			continue
		}
		result = append(result, &Template{
			TenantID: tenantID,
			Type:     typ,
			Body:     DefaultBody(typ),
			Active:   true,
		})
	}
	return result, nil
}
