// Package template manages per-tenant message templates.
//
// Each notification type renders through a template with
// {{client_name}}, {{amount}} and {{document_ref}} placeholders.
// Tenants without a custom template fall back to the defaults.
package template

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrTemplateNotFound = errors.New("template not found")

// Template is one tenant's message template for a notification type.
type Template struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Type      string    `json:"type"`
	Body      string    `json:"body"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// defaults are used when a tenant has no active template for a type.
var defaults = map[string]string{
	"sale":     "Olá {{client_name}}! Sua compra de {{amount}} foi confirmada. Obrigado!",
	"quote":    "Olá {{client_name}}! Seu orçamento {{document_ref}} está pronto: {{amount}}.",
	"payment":  "Olá {{client_name}}! Recebemos seu pagamento de {{amount}}. Obrigado!",
	"reminder": "Olá {{client_name}}! Lembrete: pagamento de {{amount}} em aberto ({{document_ref}}).",
}

// DefaultBody returns the built-in template for a notification type.
func DefaultBody(notificationType string) string {
	if body, ok := defaults[notificationType]; ok {
		return body
	}
	return "Olá {{client_name}}! Você tem uma nova notificação."
}

// Render substitutes placeholders into a template body. Amount is
// rendered in BRL from cents.
func Render(body, clientName string, amountCents int64, documentRef string) string {
	r := strings.NewReplacer(
		"{{client_name}}", clientName,
		"{{amount}}", FormatBRL(amountCents),
		"{{document_ref}}", documentRef,
	)
	return r.Replace(body)
}

// FormatBRL formats cents as a Brazilian Real amount, e.g. R$ 1.250,00.
func FormatBRL(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	reais := cents / 100
	rest := cents % 100

	digits := fmt.Sprintf("%d", reais)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), rest)
}

// Store persists template records.
type Store interface {
	Upsert(ctx context.Context, t *Template) error
	Get(ctx context.Context, tenantID, notificationType string) (*Template, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Template, error)
}
