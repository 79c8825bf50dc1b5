package partners

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdeck/freightdeck/internal/shared"
)

type fakeStore struct {
	nodes map[string]Node
}

func newFakeStore(nodes ...Node) *fakeStore {
	s := &fakeStore{nodes: make(map[string]Node, len(nodes))}
	for _, node := range nodes {
		s.nodes[node.ID] = node
	}
	return s
}

func (s *fakeStore) Partner(_ context.Context, id string) (*Node, error) {
	node, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return &node, nil
}

func (s *fakeStore) ListAll(_ context.Context) ([]Node, error) {
	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	return out, nil
}

func (s *fakeStore) ListPlaced(_ context.Context) ([]Node, error) {
	var out []Node
	for _, node := range s.nodes {
		if node.InHierarchy() {
			out = append(out, node)
		}
	}
	return out, nil
}

func (s *fakeStore) ListUnassigned(_ context.Context) ([]Node, error) {
	var out []Node
	for _, node := range s.nodes {
		if !node.InHierarchy() {
			out = append(out, node)
		}
	}
	return out, nil
}

func (s *fakeStore) InTx(_ context.Context, fn func(MutationStore) error) error {
	snapshot := make(map[string]Node, len(s.nodes))
	for id, node := range s.nodes {
		snapshot[id] = node
	}
	if err := fn(&fakeMutation{store: s}); err != nil {
		s.nodes = snapshot
		return err
	}
	return nil
}

type fakeMutation struct {
	store *fakeStore
}

func (m *fakeMutation) LockPartner(ctx context.Context, id string) (*Node, error) {
	return m.store.Partner(ctx, id)
}

func (m *fakeMutation) SavePlacement(_ context.Context, node *Node) error {
	m.store.nodes[node.ID] = *node
	return nil
}

func (m *fakeMutation) HasChildren(_ context.Context, id string) (bool, error) {
	for _, node := range m.store.nodes {
		if node.ParentID != nil && *node.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *fakeMutation) RebaseSubtree(_ context.Context, oldPrefix, newPrefix string, depthDelta int) error {
	for id, node := range m.store.nodes {
		if !strings.HasPrefix(node.Path, oldPrefix) {
			continue
		}
		node.Path = newPrefix + node.Path[len(oldPrefix):]
		node.Depth += depthDelta
		m.store.nodes[id] = node
	}
	return nil
}

var actor = shared.Principal{UserID: "admin-1", Role: "admin"}

func strPtr(v string) *string { return &v }

func placed(id string, parentID *string, isRoot bool, depth int, path string) Node {
	return Node{ID: id, Name: id, ParentID: parentID, IsRoot: isRoot, Depth: depth, Path: path}
}

func TestSetRoot(t *testing.T) {
	store := newFakeStore(Node{ID: "p1", Name: "Alpha"})
	svc := NewService(store, nil)
	ctx := context.Background()

	node, err := svc.SetRoot(ctx, actor, "p1")
	require.NoError(t, err)
	assert.True(t, node.IsRoot)
	assert.Equal(t, 0, node.Depth)
	assert.Equal(t, "/p1", node.Path)

	again, err := svc.SetRoot(ctx, actor, "p1")
	require.NoError(t, err, "promoting an existing root is a no-op")
	assert.Equal(t, node.Path, again.Path)

	_, err = svc.SetRoot(ctx, actor, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetRootRejectsAttachedPartner(t *testing.T) {
	store := newFakeStore(
		placed("p1", nil, true, 0, "/p1"),
		placed("p2", strPtr("p1"), false, 1, "/p1/p2"),
	)
	svc := NewService(store, nil)

	_, err := svc.SetRoot(context.Background(), actor, "p2")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCancelRoot(t *testing.T) {
	store := newFakeStore(
		placed("p1", nil, true, 0, "/p1"),
		placed("p2", strPtr("p1"), false, 1, "/p1/p2"),
		placed("q1", nil, true, 0, "/q1"),
	)
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.CancelRoot(ctx, actor, "p1")
	assert.ErrorIs(t, err, shared.ErrConflict, "a root with children cannot be demoted")

	node, err := svc.CancelRoot(ctx, actor, "q1")
	require.NoError(t, err)
	assert.False(t, node.IsRoot)
	assert.Empty(t, node.Path)

	_, err = svc.CancelRoot(ctx, actor, "p2")
	assert.ErrorIs(t, err, shared.ErrValidation, "only roots can be demoted")
}

func TestAttach(t *testing.T) {
	store := newFakeStore(
		placed("p1", nil, true, 0, "/p1"),
		Node{ID: "p2", Name: "Beta"},
	)
	svc := NewService(store, nil)

	node, err := svc.Attach(context.Background(), actor, "p2", "p1")
	require.NoError(t, err)
	assert.Equal(t, "/p1/p2", node.Path)
	assert.Equal(t, 1, node.Depth)
	assert.False(t, node.IsRoot)
	require.NotNil(t, node.ParentID)
	assert.Equal(t, "p1", *node.ParentID)
}

func TestAttachRejectsCycles(t *testing.T) {
	store := newFakeStore(
		placed("p1", nil, true, 0, "/p1"),
		placed("p2", strPtr("p1"), false, 1, "/p1/p2"),
	)
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.Attach(ctx, actor, "p1", "p1")
	assert.ErrorIs(t, err, ErrCycle)

	_, err = svc.Attach(ctx, actor, "p1", "p2")
	assert.ErrorIs(t, err, ErrCycle, "a node cannot move under its own descendant")
	assert.Equal(t, "/p1/p2", store.nodes["p2"].Path, "rejected attach must not write")
}

func TestAttachRequiresPlacedParent(t *testing.T) {
	store := newFakeStore(
		Node{ID: "p1", Name: "Alpha"},
		Node{ID: "p2", Name: "Beta"},
	)
	svc := NewService(store, nil)

	_, err := svc.Attach(context.Background(), actor, "p2", "p1")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestAttachMovesWholeSubtree(t *testing.T) {
	store := newFakeStore(
		placed("p1", nil, true, 0, "/p1"),
		placed("p2", strPtr("p1"), false, 1, "/p1/p2"),
		placed("p3", strPtr("p2"), false, 2, "/p1/p2/p3"),
		placed("q1", nil, true, 0, "/q1"),
	)
	svc := NewService(store, nil)

	node, err := svc.Attach(context.Background(), actor, "p2", "q1")
	require.NoError(t, err)

	assert.Equal(t, "/q1/p2", node.Path)
	assert.Equal(t, 1, node.Depth)
	descendant := store.nodes["p3"]
	assert.Equal(t, "/q1/p2/p3", descendant.Path, "descendants follow the moved node")
	assert.Equal(t, 2, descendant.Depth)
}

func TestAttachLeavesLookalikeSiblingsAlone(t *testing.T) {
	store := newFakeStore(
		placed("p1", nil, true, 0, "/p1"),
		placed("pa_b", strPtr("p1"), false, 1, "/p1/pa_b"),
		placed("c0", strPtr("pa_b"), false, 2, "/p1/pa_b/c0"),
		placed("paxb", strPtr("p1"), false, 1, "/p1/paxb"),
		placed("c1", strPtr("paxb"), false, 2, "/p1/paxb/c1"),
		placed("q1", nil, true, 0, "/q1"),
	)
	svc := NewService(store, nil)

	_, err := svc.Attach(context.Background(), actor, "pa_b", "q1")
	require.NoError(t, err)

	assert.Equal(t, "/q1/pa_b/c0", store.nodes["c0"].Path, "the moved node's own subtree follows")
	assert.Equal(t, "/p1/paxb", store.nodes["paxb"].Path,
		"an id with pattern characters must not drag lookalike siblings along")
	assert.Equal(t, "/p1/paxb/c1", store.nodes["c1"].Path)
}

func TestDetach(t *testing.T) {
	store := newFakeStore(
		placed("p1", nil, true, 0, "/p1"),
		placed("p2", strPtr("p1"), false, 1, "/p1/p2"),
		placed("p3", strPtr("p2"), false, 2, "/p1/p2/p3"),
	)
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.Detach(ctx, actor, "p2")
	assert.ErrorIs(t, err, shared.ErrConflict, "a partner with children cannot be detached")

	node, err := svc.Detach(ctx, actor, "p3")
	require.NoError(t, err)
	assert.Nil(t, node.ParentID)
	assert.Empty(t, node.Path)

	_, err = svc.Detach(ctx, actor, "p1")
	assert.ErrorIs(t, err, shared.ErrValidation, "roots have no parent to detach from")
}

func TestBatchSetRootRollsBackOnFailure(t *testing.T) {
	store := newFakeStore(
		Node{ID: "p1", Name: "Alpha"},
		Node{ID: "p2", Name: "Beta"},
	)
	svc := NewService(store, nil)

	_, err := svc.BatchSetRoot(context.Background(), actor, []string{"p1", "missing"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, store.nodes["p1"].Path, "batch failure must undo earlier promotions")

	nodes, err := svc.BatchSetRoot(context.Background(), actor, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	assert.Equal(t, "/p1", store.nodes["p1"].Path)
	assert.Equal(t, "/p2", store.nodes["p2"].Path)
}

func TestTreeOrdersByName(t *testing.T) {
	store := newFakeStore(
		Node{ID: "r2", Name: "Zulu", IsRoot: true, Path: "/r2"},
		Node{ID: "r1", Name: "Alpha", IsRoot: true, Path: "/r1"},
		Node{ID: "c2", Name: "Bravo", ParentID: strPtr("r1"), Depth: 1, Path: "/r1/c2"},
		Node{ID: "c1", Name: "Echo", ParentID: strPtr("r1"), Depth: 1, Path: "/r1/c1"},
		Node{ID: "u1", Name: "Loose"},
	)
	svc := NewService(store, nil)

	trees, err := svc.Tree(context.Background())
	require.NoError(t, err)

	require.Len(t, trees, 2)
	assert.Equal(t, "Alpha", trees[0].Name)
	assert.Equal(t, "Zulu", trees[1].Name)
	require.Len(t, trees[0].Children, 2)
	assert.Equal(t, "Bravo", trees[0].Children[0].Name)
	assert.Equal(t, "Echo", trees[0].Children[1].Name)
}

func TestStats(t *testing.T) {
	store := newFakeStore(
		placed("p1", nil, true, 0, "/p1"),
		placed("p2", strPtr("p1"), false, 1, "/p1/p2"),
		placed("p3", strPtr("p2"), false, 2, "/p1/p2/p3"),
		Node{ID: "u1", Name: "Loose"},
	)
	svc := NewService(store, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Placed)
	assert.Equal(t, 1, stats.Roots)
	assert.Equal(t, 1, stats.Unassigned)
	assert.Equal(t, 2, stats.MaxDepth)
	assert.InDelta(t, 1.0, stats.AvgDepth, 0.001)
}
