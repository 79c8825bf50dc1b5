package partners

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/freightdeck/freightdeck/internal/shared"
)

// Service implements the hierarchy operations. Every placement change
// runs inside one transaction: the moved node and its whole subtree are
// updated together, or not at all.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs the partner hierarchy service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Tree returns the full hierarchy as root trees.
func (s *Service) Tree(ctx context.Context) ([]*TreeNode, error) {
	nodes, err := s.store.ListPlaced(ctx)
	if err != nil {
		return nil, err
	}
	return BuildForest(nodes), nil
}

// Unassigned returns partners that are not placed in the hierarchy.
func (s *Service) Unassigned(ctx context.Context) ([]Node, error) {
	return s.store.ListUnassigned(ctx)
}

// Stats returns hierarchy summary statistics.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	nodes, err := s.store.ListAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(nodes), nil
}

// SetRoot promotes an unassigned partner to a hierarchy root. A partner
// that already has a parent must be detached first. Promoting an existing
// root is a no-op.
func (s *Service) SetRoot(ctx context.Context, actor shared.Principal, id string) (Node, error) {
	if err := checkActor(actor); err != nil {
		return Node{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Node{}, fmt.Errorf("%w: partner id required", shared.ErrValidation)
	}
	var result Node
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		node, err := s.promoteRoot(ctx, tx, id)
		if err != nil {
			return err
		}
		result = *node
		return nil
	})
	if err != nil {
		return Node{}, err
	}
	s.logger.Info("partner promoted to root", slog.String("partner_id", id), slog.String("actor", actor.UserID))
	return result, nil
}

// BatchSetRoot promotes several partners in one transaction; any failure
// rolls back the whole batch.
func (s *Service) BatchSetRoot(ctx context.Context, actor shared.Principal, ids []string) ([]Node, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one partner id required", shared.ErrValidation)
	}
	var results []Node
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		results = results[:0]
		for _, id := range ids {
			node, err := s.promoteRoot(ctx, tx, strings.TrimSpace(id))
			if err != nil {
				return err
			}
			results = append(results, *node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("partners promoted to root", slog.Int("count", len(results)), slog.String("actor", actor.UserID))
	return results, nil
}

func (s *Service) promoteRoot(ctx context.Context, tx MutationStore, id string) (*Node, error) {
	node, err := tx.LockPartner(ctx, id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("%w: partner %s", shared.ErrNotFound, id)
	}
	if node.ParentID != nil {
		return nil, fmt.Errorf("%w: partner %s has a parent, detach it first", shared.ErrValidation, id)
	}
	if node.IsRoot {
		return node, nil
	}
	node.IsRoot = true
	node.Depth = 0
	node.Path = "/" + node.ID
	if err := tx.SavePlacement(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// CancelRoot demotes a childless root back to unassigned.
func (s *Service) CancelRoot(ctx context.Context, actor shared.Principal, id string) (Node, error) {
	if err := checkActor(actor); err != nil {
		return Node{}, err
	}
	var result Node
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		node, err := tx.LockPartner(ctx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return fmt.Errorf("%w: partner %s", shared.ErrNotFound, id)
		}
		if !node.IsRoot {
			return fmt.Errorf("%w: partner %s is not a root", shared.ErrValidation, id)
		}
		hasChildren, err := tx.HasChildren(ctx, id)
		if err != nil {
			return err
		}
		if hasChildren {
			return fmt.Errorf("%w: partner %s still has children", shared.ErrConflict, id)
		}
		node.IsRoot = false
		node.Depth = 0
		node.Path = ""
		if err := tx.SavePlacement(ctx, node); err != nil {
			return err
		}
		result = *node
		return nil
	})
	if err != nil {
		return Node{}, err
	}
	s.logger.Info("partner root cancelled", slog.String("partner_id", id), slog.String("actor", actor.UserID))
	return result, nil
}

// Attach places a partner (and its subtree, if any) under a parent that is
// already in the hierarchy. The cycle check runs before any write: the new
// parent must not sit inside the moved node's subtree.
func (s *Service) Attach(ctx context.Context, actor shared.Principal, id, parentID string) (Node, error) {
	if err := checkActor(actor); err != nil {
		return Node{}, err
	}
	id = strings.TrimSpace(id)
	parentID = strings.TrimSpace(parentID)
	if id == "" || parentID == "" {
		return Node{}, fmt.Errorf("%w: partner id and parent id required", shared.ErrValidation)
	}
	if id == parentID {
		return Node{}, ErrCycle
	}
	var result Node
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		// Lock order: parent first, then child; every attach follows the
		// same order so two concurrent moves cannot deadlock on each other.
		parent, err := tx.LockPartner(ctx, parentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return fmt.Errorf("%w: parent partner %s", shared.ErrNotFound, parentID)
		}
		if !parent.InHierarchy() {
			return fmt.Errorf("%w: parent partner %s is not in the hierarchy", shared.ErrValidation, parentID)
		}
		node, err := tx.LockPartner(ctx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return fmt.Errorf("%w: partner %s", shared.ErrNotFound, id)
		}
		if node.isAncestorOf(*parent) {
			return ErrCycle
		}
		oldPath := node.Path
		oldDepth := node.Depth
		node.ParentID = &parent.ID
		node.IsRoot = false
		node.Depth = parent.Depth + 1
		node.Path = parent.Path + "/" + node.ID
		if err := tx.SavePlacement(ctx, node); err != nil {
			return err
		}
		if oldPath != "" && oldPath != node.Path {
			if err := tx.RebaseSubtree(ctx, oldPath+"/", node.Path+"/", node.Depth-oldDepth); err != nil {
				return err
			}
		}
		result = *node
		return nil
	})
	if err != nil {
		return Node{}, err
	}
	s.logger.Info("partner attached",
		slog.String("partner_id", id),
		slog.String("parent_id", parentID),
		slog.String("actor", actor.UserID),
	)
	return result, nil
}

// Detach removes a childless partner from the hierarchy, back to
// unassigned.
func (s *Service) Detach(ctx context.Context, actor shared.Principal, id string) (Node, error) {
	if err := checkActor(actor); err != nil {
		return Node{}, err
	}
	var result Node
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		node, err := tx.LockPartner(ctx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return fmt.Errorf("%w: partner %s", shared.ErrNotFound, id)
		}
		if node.ParentID == nil {
			return fmt.Errorf("%w: partner %s has no parent", shared.ErrValidation, id)
		}
		hasChildren, err := tx.HasChildren(ctx, id)
		if err != nil {
			return err
		}
		if hasChildren {
			return fmt.Errorf("%w: partner %s still has children", shared.ErrConflict, id)
		}
		node.ParentID = nil
		node.IsRoot = false
		node.Depth = 0
		node.Path = ""
		if err := tx.SavePlacement(ctx, node); err != nil {
			return err
		}
		result = *node
		return nil
	})
	if err != nil {
		return Node{}, err
	}
	s.logger.Info("partner detached", slog.String("partner_id", id), slog.String("actor", actor.UserID))
	return result, nil
}

func checkActor(actor shared.Principal) error {
	if actor.IsZero() {
		return fmt.Errorf("%w: acting principal required", shared.ErrUnauthorized)
	}
	return nil
}
