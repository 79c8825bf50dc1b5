package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdeck/freightdeck/internal/catalog"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so ledger writes
// can join a caller's transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository provides PostgreSQL backed persistence for the ledger.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const insertSQL = `
INSERT INTO permission_audit_logs
	(action, permission_type, permission_key, user_id, role, target_user_id, project_id, old_value, new_value, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))
RETURNING id, created_at`

// Insert appends one entry using the pool.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	return insert(ctx, r.pool, entry)
}

// InsertTx appends one entry inside the caller's transaction so a data
// write and its ledger entry commit or roll back together.
func (r *PGRepository) InsertTx(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error) {
	return insert(ctx, tx, entry)
}

func insert(ctx context.Context, q querier, entry Entry) (Entry, error) {
	var createdAt any
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt
	}
	row := q.QueryRow(ctx, insertSQL,
		string(entry.Action),
		string(entry.PermissionType),
		entry.PermissionKey,
		entry.UserID,
		entry.Role,
		entry.TargetUserID,
		entry.ProjectID,
		entry.OldValue,
		entry.NewValue,
		entry.Reason,
		entry.CreatedBy,
		createdAt,
	)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("audit: insert: %w", err)
	}
	return entry, nil
}

// List returns entries newest first. Ties on created_at are broken by id
// ascending so pagination stays stable within one timestamp.
func (r *PGRepository) List(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.Action != "" {
		where = append(where, "action = "+arg(string(filters.Action)))
	}
	if filters.PermissionType != "" {
		where = append(where, "permission_type = "+arg(string(filters.PermissionType)))
	}
	if filters.UserID != "" {
		where = append(where, "user_id = "+arg(filters.UserID))
	}
	if filters.CreatedBy != "" {
		where = append(where, "created_by = "+arg(filters.CreatedBy))
	}
	if !filters.From.IsZero() {
		where = append(where, "created_at >= "+arg(filters.From))
	}
	if !filters.To.IsZero() {
		where = append(where, "created_at <= "+arg(filters.To))
	}

	query := `SELECT id, action, permission_type, permission_key, user_id, role, target_user_id, project_id, old_value, new_value, reason, created_by, created_at FROM permission_audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			action   string
			permType string
		)
		if err := rows.Scan(&entry.ID, &action, &permType, &entry.PermissionKey, &entry.UserID, &entry.Role, &entry.TargetUserID, &entry.ProjectID, &entry.OldValue, &entry.NewValue, &entry.Reason, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entry.Action = Action(action)
		entry.PermissionType = catalog.Category(permType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
