package permissions

import (
	"context"

	"github.com/freightdeck/freightdeck/internal/audit"
)

// Store is the read side of the permission data. Absent rows are reported
// as nil values, never as errors.
type Store interface {
	RoleTemplate(ctx context.Context, role string) (*RoleTemplate, error)
	ListRoleTemplates(ctx context.Context) ([]RoleTemplate, error)
	Override(ctx context.Context, userID string, projectID *string) (*UserOverride, error)
	ListOverrides(ctx context.Context, userID string) ([]UserOverride, error)
	InTx(ctx context.Context, fn func(MutationStore) error) error
}

// MutationStore is the write side, scoped to one transaction. Lock methods
// take a row lock on the target so concurrent toggles on the same target
// serialize instead of losing updates, and AppendAudit joins the same
// transaction so a data write and its ledger entry commit together.
type MutationStore interface {
	LockRoleTemplate(ctx context.Context, role string) (*RoleTemplate, error)
	SaveRoleTemplate(ctx context.Context, template *RoleTemplate) error
	LockOverride(ctx context.Context, userID string, projectID *string) (*UserOverride, error)
	SaveOverride(ctx context.Context, override *UserOverride) error
	DeleteOverride(ctx context.Context, userID string, projectID *string) (bool, error)
	AppendAudit(ctx context.Context, entry audit.Entry) error
}
