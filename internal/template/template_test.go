package template

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBRL(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "R$ 0,00"},
		{5, "R$ 0,05"},
		{100, "R$ 1,00"},
		{125000, "R$ 1.250,00"},
		{99999999, "R$ 999.999,99"},
		{123456789, "R$ 1.234.567,89"},
		{-5000, "-R$ 50,00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatBRL(tc.cents), "cents=%d", tc.cents)
	}
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	body := "Olá {{client_name}}! Valor: {{amount}} ({{document_ref}})"
	got := Render(body, "Maria", 125000, "NF-42")
	assert.Equal(t, "Olá Maria! Valor: R$ 1.250,00 (NF-42)", got)
}

func TestDefaultBodyCoversAllTypes(t *testing.T) {
	for _, typ := range []string{"sale", "quote", "payment", "reminder"} {
		body := DefaultBody(typ)
		assert.Contains(t, body, "{{client_name}}", "type %s", typ)
	}
	// Unknown types still produce something sendable.
	assert.NotEmpty(t, DefaultBody("unknown"))
}

func TestServiceBodyForFallsBackToDefault(t *testing.T) {
	svc := NewService(NewMemoryStore(), slog.Default())
	ctx := context.Background()

	got := svc.BodyFor(ctx, "ten_1", "sale")
	assert.Equal(t, DefaultBody("sale"), got)

	_, err := svc.Set(ctx, "ten_1", "sale", "Oi {{client_name}}, venda de {{amount}}!", true)
	require.NoError(t, err)

	got = svc.BodyFor(ctx, "ten_1", "sale")
	assert.True(t, strings.HasPrefix(got, "Oi "))

	// Deactivated custom template falls back to the default.
	_, err = svc.Set(ctx, "ten_1", "sale", "Oi {{client_name}}!", false)
	require.NoError(t, err)
	assert.Equal(t, DefaultBody("sale"), svc.BodyFor(ctx, "ten_1", "sale"))
}

func TestServiceSetValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(), slog.Default())
	ctx := context.Background()

	_, err := svc.Set(ctx, "ten_1", "fax", "body", true)
	assert.Error(t, err, "unknown type must be rejected")

	_, err = svc.Set(ctx, "ten_1", "sale", "   ", true)
	assert.Error(t, err, "empty body must be rejected")
}

func TestServiceListFillsDefaults(t *testing.T) {
	svc := NewService(NewMemoryStore(), slog.Default())
	ctx := context.Background()

	_, err := svc.Set(ctx, "ten_1", "payment", "Pagamento {{amount}} ok!", true)
	require.NoError(t, err)

	templates, err := svc.List(ctx, "ten_1")
	require.NoError(t, err)
	require.Len(t, templates, 4)

	byType := map[string]*Template{}
	for _, tpl := range templates {
		byType[tpl.Type] = tpl
	}
	assert.Equal(t, "Pagamento {{amount}} ok!", byType["payment"].Body)
	assert.Equal(t, DefaultBody("sale"), byType["sale"].Body)
}

func TestMemoryStoreUpsertReplaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &Template{ID: "tpl_1", TenantID: "ten_1", Type: "sale", Body: "v1", Active: true}
	require.NoError(t, store.Upsert(ctx, first))

	second := &Template{ID: "tpl_2", TenantID: "ten_1", Type: "sale", Body: "v2", Active: true}
	require.NoError(t, store.Upsert(ctx, second))

	got, err := store.Get(ctx, "ten_1", "sale")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Body)
	assert.Equal(t, "tpl_1", got.ID, "upsert must keep the original ID")
}
