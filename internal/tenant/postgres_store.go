package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `id, name, whatsapp_number, api_key, plan, status, mrr_cents,
	stripe_customer_id, trial_ends_at, deactivated_at, created_at, updated_at`

// Create inserts a new tenant. The partial unique index on active
// whatsapp_number turns duplicate active numbers into ErrNumberInUse.
func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (
			id, name, whatsapp_number, api_key, plan, status, mrr_cents,
			stripe_customer_id, trial_ends_at, deactivated_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		t.ID, t.Name, t.WhatsAppNumber, t.APIKey, string(t.Plan), string(t.Status), t.MRRCents,
		nullString(t.StripeCustomerID), nullTime(t.TrialEndsAt), nullTime(t.DeactivatedAt),
		t.CreatedAt, t.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrNumberInUse
	}
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return p.scanOne(row, "get tenant")
}

func (p *PostgresStore) GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE api_key = $1`, apiKey)
	return p.scanOne(row, "get tenant by api key")
}

func (p *PostgresStore) GetActiveByNumber(ctx context.Context, number string) (*Tenant, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE whatsapp_number = $1 AND status = 'active' LIMIT 1`, number)
	return p.scanOne(row, "get tenant by number")
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	t.UpdatedAt = time.Now()
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET
			name               = $2,
			whatsapp_number    = $3,
			api_key            = $4,
			plan               = $5,
			status             = $6,
			mrr_cents          = $7,
			stripe_customer_id = $8,
			trial_ends_at      = $9,
			deactivated_at     = $10,
			updated_at         = $11
		WHERE id = $1
	`,
		t.ID, t.Name, t.WhatsAppNumber, t.APIKey, string(t.Plan), string(t.Status), t.MRRCents,
		nullString(t.StripeCustomerID), nullTime(t.TrialEndsAt), nullTime(t.DeactivatedAt),
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, f Filter, limit, offset int) ([]*Tenant, error) {
	where, args := filterClause(f)
	args = append(args, limit, offset)
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM tenants %s
		 ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		tenantColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTenants(rows)
}

func (p *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := filterClause(f)
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenants `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]*Tenant, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE plan = 'trial' AND status = 'active' AND trial_ends_at <= $1
		 ORDER BY trial_ends_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired trials: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTenants(rows)
}

// ExpireTrial deactivates a tenant with the trial re-check folded into
// the WHERE clause, so an upgrade that committed after the sweep's read
// wins and the row is left untouched.
func (p *PostgresStore) ExpireTrial(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET status = 'inactive', deactivated_at = $2, updated_at = $2
		WHERE id = $1 AND plan = 'trial' AND status = 'active'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("expire trial: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

// Snapshot reads the whole tenants table in one statement, giving the
// aggregator a consistent view under Postgres's statement-level snapshot.
func (p *PostgresStore) Snapshot(ctx context.Context) ([]*Tenant, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants`)
	if err != nil {
		return nil, fmt.Errorf("snapshot tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTenants(rows)
}

func filterClause(f Filter) (string, []interface{}) {
	where := ""
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}
	if f.Plan != "" {
		add("plan = $%d", string(f.Plan))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	return where, args
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func (p *PostgresStore) scanOne(row scannable, op string) (*Tenant, error) {
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func scanTenant(row scannable) (*Tenant, error) {
	var t Tenant
	var plan, status string
	var stripeID sql.NullString
	var trialEnds, deactivated, createdAt, updatedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.Name, &t.WhatsAppNumber, &t.APIKey, &plan, &status, &t.MRRCents,
		&stripeID, &trialEnds, &deactivated, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Plan = Plan(plan)
	t.Status = Status(status)
	if stripeID.Valid {
		t.StripeCustomerID = stripeID.String
	}
	if trialEnds.Valid {
		t.TrialEndsAt = trialEnds.Time
	}
	if deactivated.Valid {
		t.DeactivatedAt = deactivated.Time
	}
	if createdAt.Valid {
		t.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		t.UpdatedAt = updatedAt.Time
	}
	return &t, nil
}

func scanTenants(rows *sql.Rows) ([]*Tenant, error) {
	var result []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// nullTime returns a sql.NullTime: valid if t is non-zero, null otherwise.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
