package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdeck/freightdeck/internal/audit"
	"github.com/freightdeck/freightdeck/internal/platform/db"
)

// PGStore provides PostgreSQL backed persistence for templates and
// overrides.
type PGStore struct {
	pool      *pgxpool.Pool
	auditRepo *audit.PGRepository
}

// NewPGStore constructs the store. The audit repository is used to append
// ledger entries inside mutation transactions.
func NewPGStore(pool *pgxpool.Pool, auditRepo *audit.PGRepository) *PGStore {
	return &PGStore{pool: pool, auditRepo: auditRepo}
}

const templateColumns = `role, menu_permissions, function_permissions, project_permissions, data_permissions, description, color, is_active, created_at, updated_at`

// RoleTemplate fetches one template, nil when absent.
func (s *PGStore) RoleTemplate(ctx context.Context, role string) (*RoleTemplate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM role_permission_templates WHERE role = $1`, role)
	return scanTemplate(row)
}

// ListRoleTemplates returns all templates ordered by role.
func (s *PGStore) ListRoleTemplates(ctx context.Context) ([]RoleTemplate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+templateColumns+` FROM role_permission_templates ORDER BY role`)
	if err != nil {
		return nil, fmt.Errorf("permissions: list templates: %w", err)
	}
	defer rows.Close()

	var templates []RoleTemplate
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *template)
	}
	return templates, rows.Err()
}

const overrideColumns = `user_id, project_id, role, menu_permissions, function_permissions, project_permissions, data_permissions, inherit_role, created_by, created_at, updated_at`

// Override fetches the override row for an exact (user, project) scope,
// nil when absent. A project-scoped lookup never falls back to the global
// row.
func (s *PGStore) Override(ctx context.Context, userID string, projectID *string) (*UserOverride, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+overrideColumns+` FROM user_permissions WHERE user_id = $1 AND project_id IS NOT DISTINCT FROM $2`, userID, projectID)
	return scanOverride(row)
}

// ListOverrides returns every override row of one user (global first).
func (s *PGStore) ListOverrides(ctx context.Context, userID string) ([]UserOverride, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+overrideColumns+` FROM user_permissions WHERE user_id = $1 ORDER BY project_id NULLS FIRST`, userID)
	if err != nil {
		return nil, fmt.Errorf("permissions: list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []UserOverride
	for rows.Next() {
		override, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, *override)
	}
	return overrides, rows.Err()
}

// InTx runs fn against a transaction-scoped MutationStore.
func (s *PGStore) InTx(ctx context.Context, fn func(MutationStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgMutationStore{tx: tx, auditRepo: s.auditRepo})
	})
}

type pgMutationStore struct {
	tx        pgx.Tx
	auditRepo *audit.PGRepository
}

func (m *pgMutationStore) LockRoleTemplate(ctx context.Context, role string) (*RoleTemplate, error) {
	row := m.tx.QueryRow(ctx, `SELECT `+templateColumns+` FROM role_permission_templates WHERE role = $1 FOR UPDATE`, role)
	return scanTemplate(row)
}

func (m *pgMutationStore) SaveRoleTemplate(ctx context.Context, template *RoleTemplate) error {
	_, err := m.tx.Exec(ctx, `
		INSERT INTO role_permission_templates (role, menu_permissions, function_permissions, project_permissions, data_permissions, description, color, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (role) DO UPDATE SET
			menu_permissions = EXCLUDED.menu_permissions,
			function_permissions = EXCLUDED.function_permissions,
			project_permissions = EXCLUDED.project_permissions,
			data_permissions = EXCLUDED.data_permissions,
			description = EXCLUDED.description,
			color = EXCLUDED.color,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`,
		template.Role,
		template.Permissions.Menu,
		template.Permissions.Function,
		template.Permissions.Project,
		template.Permissions.Data,
		template.Description,
		template.Color,
		template.IsActive,
	)
	if err != nil {
		return fmt.Errorf("permissions: save template %s: %w", template.Role, err)
	}
	return nil
}

func (m *pgMutationStore) LockOverride(ctx context.Context, userID string, projectID *string) (*UserOverride, error) {
	row := m.tx.QueryRow(ctx, `SELECT `+overrideColumns+` FROM user_permissions WHERE user_id = $1 AND project_id IS NOT DISTINCT FROM $2 FOR UPDATE`, userID, projectID)
	return scanOverride(row)
}

func (m *pgMutationStore) SaveOverride(ctx context.Context, override *UserOverride) error {
	_, err := m.tx.Exec(ctx, `
		INSERT INTO user_permissions (user_id, project_id, role, menu_permissions, function_permissions, project_permissions, data_permissions, inherit_role, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (user_id, COALESCE(project_id, '')) DO UPDATE SET
			role = EXCLUDED.role,
			menu_permissions = EXCLUDED.menu_permissions,
			function_permissions = EXCLUDED.function_permissions,
			project_permissions = EXCLUDED.project_permissions,
			data_permissions = EXCLUDED.data_permissions,
			inherit_role = EXCLUDED.inherit_role,
			updated_at = NOW()`,
		override.UserID,
		override.ProjectID,
		override.Role,
		override.Permissions.Menu,
		override.Permissions.Function,
		override.Permissions.Project,
		override.Permissions.Data,
		override.InheritRole,
		override.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("permissions: save override %s: %w", ScopeKey(override.UserID, override.ProjectID), err)
	}
	return nil
}

func (m *pgMutationStore) DeleteOverride(ctx context.Context, userID string, projectID *string) (bool, error) {
	tag, err := m.tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND project_id IS NOT DISTINCT FROM $2`, userID, projectID)
	if err != nil {
		return false, fmt.Errorf("permissions: delete override: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (m *pgMutationStore) AppendAudit(ctx context.Context, entry audit.Entry) error {
	if m.auditRepo == nil {
		return errors.New("permissions: audit repository not configured")
	}
	_, err := m.auditRepo.InsertTx(ctx, m.tx, entry)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*RoleTemplate, error) {
	var template RoleTemplate
	err := row.Scan(
		&template.Role,
		&template.Permissions.Menu,
		&template.Permissions.Function,
		&template.Permissions.Project,
		&template.Permissions.Data,
		&template.Description,
		&template.Color,
		&template.IsActive,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("permissions: scan template: %w", err)
	}
	return &template, nil
}

func scanOverride(row rowScanner) (*UserOverride, error) {
	var override UserOverride
	err := row.Scan(
		&override.UserID,
		&override.ProjectID,
		&override.Role,
		&override.Permissions.Menu,
		&override.Permissions.Function,
		&override.Permissions.Project,
		&override.Permissions.Data,
		&override.InheritRole,
		&override.CreatedBy,
		&override.CreatedAt,
		&override.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("permissions: scan override: %w", err)
	}
	return &override, nil
}
