package notification

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

// NewPostgresStore creates a new PostgreSQL-backed notification store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const notificationColumns = `id, tenant_id, type, client_name, phone, amount_cents,
	document_ref, status, attempt_count, last_error, created_at, last_attempted_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, n *Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, tenant_id, type, client_name, phone, amount_cents,
			document_ref, status, attempt_count, last_error,
			created_at, last_attempted_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		n.ID, n.TenantID, string(n.Type), n.ClientName, n.Phone, n.AmountCents,
		nullString(n.DocumentRef), string(n.Status), n.AttemptCount, nullString(n.LastError),
		n.CreatedAt, nullTime(n.LastAttemptedAt), n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Notification, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) Update(ctx context.Context, n *Notification) error {
	n.UpdatedAt = time.Now()
	result, err := p.db.ExecContext(ctx, `
		UPDATE notifications SET
			status            = $2,
			attempt_count     = $3,
			last_error        = $4,
			last_attempted_at = $5,
			updated_at        = $6
		WHERE id = $1
	`,
		n.ID, string(n.Status), n.AttemptCount, nullString(n.LastError),
		nullTime(n.LastAttemptedAt), n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, f Filter, limit, offset int) ([]*Notification, error) {
	where, args := filterClause(f)
	args = append(args, limit, offset)
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM notifications %s
		 ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanNotifications(rows)
}

func (p *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := filterClause(f)
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) ListDeliverable(ctx context.Context, maxAttempts, limit int) ([]*Notification, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE status = 'pending' OR (status = 'failed' AND attempt_count < $1)
		 ORDER BY created_at ASC LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliverable: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanNotifications(rows)
}

func (p *PostgresStore) CountByStatus(ctx context.Context, tenantID string) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM notifications GROUP BY status`
	var args []interface{}
	if tenantID != "" {
		query = `SELECT status, COUNT(*) FROM notifications WHERE tenant_id = $1 GROUP BY status`
		args = append(args, tenantID)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
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
	if f.TenantID != "" {
		add("tenant_id = $%d", f.TenantID)
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

func scanNotification(row scannable) (*Notification, error) {
	var n Notification
	var typ, status string
	var documentRef, lastError sql.NullString
	var createdAt, lastAttempted, updatedAt sql.NullTime

	err := row.Scan(
		&n.ID, &n.TenantID, &typ, &n.ClientName, &n.Phone, &n.AmountCents,
		&documentRef, &status, &n.AttemptCount, &lastError,
		&createdAt, &lastAttempted, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Type = Type(typ)
	n.Status = Status(status)
	if documentRef.Valid {
		n.DocumentRef = documentRef.String
	}
	if lastError.Valid {
		n.LastError = lastError.String
	}
	if createdAt.Valid {
		n.CreatedAt = createdAt.Time
	}
	if lastAttempted.Valid {
		n.LastAttemptedAt = lastAttempted.Time
	}
	if updatedAt.Valid {
		n.UpdatedAt = updatedAt.Time
	}
	return &n, nil
}

func scanNotifications(rows *sql.Rows) ([]*Notification, error) {
	var result []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
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
