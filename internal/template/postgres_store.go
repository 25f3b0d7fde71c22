package template

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed template store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Upsert(ctx context.Context, t *Template) error {
	t.UpdatedAt = time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO templates (id, tenant_id, type, body, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, type) DO UPDATE SET
			body       = EXCLUDED.body,
			active     = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.TenantID, t.Type, t.Body, t.Active, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, tenantID, notificationType string) (*Template, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, type, body, active, created_at, updated_at
		FROM templates WHERE tenant_id = $1 AND type = $2
	`, tenantID, notificationType)

	var t Template
	err := row.Scan(&t.ID, &t.TenantID, &t.Type, &t.Body, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

func (p *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Template, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, type, body, active, created_at, updated_at
		FROM templates WHERE tenant_id = $1 ORDER BY type ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Type, &t.Body, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}
