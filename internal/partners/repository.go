package partners

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdeck/freightdeck/internal/platform/db"
)

// Store is the read side of partner persistence. Absent rows are nil, not
// errors.
type Store interface {
	Partner(ctx context.Context, id string) (*Node, error)
	ListAll(ctx context.Context) ([]Node, error)
	ListPlaced(ctx context.Context) ([]Node, error)
	ListUnassigned(ctx context.Context) ([]Node, error)
	InTx(ctx context.Context, fn func(MutationStore) error) error
}

// MutationStore is the write side, scoped to one transaction. LockPartner
// takes a row lock so concurrent placement changes on the same partner
// serialize.
type MutationStore interface {
	LockPartner(ctx context.Context, id string) (*Node, error)
	SavePlacement(ctx context.Context, node *Node) error
	HasChildren(ctx context.Context, id string) (bool, error)
	RebaseSubtree(ctx context.Context, oldPrefix, newPrefix string, depthDelta int) error
}

const nodeColumns = `id, name, full_name, parent_partner_id, is_root, hierarchy_depth, hierarchy_path, created_at, updated_at`

// PGStore is the PostgreSQL implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a store over the pool.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Partner(ctx context.Context, id string) (*Node, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM partners WHERE id = $1`, id)
	node, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("partners: get %s: %w", id, err)
	}
	return node, nil
}

func (s *PGStore) ListAll(ctx context.Context) ([]Node, error) {
	return s.list(ctx, `SELECT `+nodeColumns+` FROM partners ORDER BY name, id`)
}

func (s *PGStore) ListPlaced(ctx context.Context) ([]Node, error) {
	return s.list(ctx, `SELECT `+nodeColumns+` FROM partners WHERE hierarchy_path <> '' ORDER BY hierarchy_path`)
}

func (s *PGStore) ListUnassigned(ctx context.Context) ([]Node, error) {
	return s.list(ctx, `SELECT `+nodeColumns+` FROM partners WHERE hierarchy_path = '' ORDER BY name, id`)
}

func (s *PGStore) list(ctx context.Context, query string) ([]Node, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("partners: list: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("partners: scan: %w", err)
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}

// InTx runs fn inside one transaction; placement writes and subtree
// rebases commit or roll back together.
func (s *PGStore) InTx(ctx context.Context, fn func(MutationStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgMutationStore{tx: tx})
	})
}

type pgMutationStore struct {
	tx pgx.Tx
}

func (m *pgMutationStore) LockPartner(ctx context.Context, id string) (*Node, error) {
	row := m.tx.QueryRow(ctx, `SELECT `+nodeColumns+` FROM partners WHERE id = $1 FOR UPDATE`, id)
	node, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("partners: lock %s: %w", id, err)
	}
	return node, nil
}

func (m *pgMutationStore) SavePlacement(ctx context.Context, node *Node) error {
	tag, err := m.tx.Exec(ctx, `
UPDATE partners
SET parent_partner_id = $2, is_root = $3, hierarchy_depth = $4, hierarchy_path = $5, updated_at = NOW()
WHERE id = $1`,
		node.ID, node.ParentID, node.IsRoot, node.Depth, node.Path)
	if err != nil {
		return fmt.Errorf("partners: save placement %s: %w", node.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("partners: save placement %s: no row", node.ID)
	}
	return nil
}

func (m *pgMutationStore) HasChildren(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := m.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM partners WHERE parent_partner_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("partners: has children %s: %w", id, err)
	}
	return exists, nil
}

// RebaseSubtree rewrites every descendant path that starts with oldPrefix
// to start with newPrefix instead, shifting depths by depthDelta. Prefixes
// include the trailing slash so sibling ids sharing a prefix do not match.
// The match compares the literal prefix, not a LIKE pattern, so ids
// containing % or _ stay literal.
func (m *pgMutationStore) RebaseSubtree(ctx context.Context, oldPrefix, newPrefix string, depthDelta int) error {
	_, err := m.tx.Exec(ctx, `
UPDATE partners
SET hierarchy_path = $2 || substr(hierarchy_path, length($1) + 1),
    hierarchy_depth = hierarchy_depth + $3,
    updated_at = NOW()
WHERE left(hierarchy_path, length($1)) = $1`,
		oldPrefix, newPrefix, depthDelta)
	if err != nil {
		return fmt.Errorf("partners: rebase subtree %s: %w", oldPrefix, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	err := row.Scan(
		&node.ID,
		&node.Name,
		&node.FullName,
		&node.ParentID,
		&node.IsRoot,
		&node.Depth,
		&node.Path,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &node, nil
}
