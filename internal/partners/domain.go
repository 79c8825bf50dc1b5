// Package partners manages the partner hierarchy: a forest of partner
// companies used to scope data visibility. Placement is materialized as a
// path of ancestor ids so subtree questions are string-prefix questions.
package partners

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/freightdeck/freightdeck/internal/shared"
)

// ErrCycle rejects an attach that would place a node under its own
// descendant.
var ErrCycle = fmt.Errorf("%w: attach would create a hierarchy cycle", shared.ErrConflict)

// Node is one partner's placement in the hierarchy. Path is the
// /-joined chain of ids from the root down to and including the node
// ("/p1/p4"); an unassigned partner has an empty path. A child's path
// always strictly extends its parent's.
type Node struct {
	ID        string
	Name      string
	FullName  string
	ParentID  *string
	IsRoot    bool
	Depth     int
	Path      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InHierarchy reports whether the node has been placed.
func (n Node) InHierarchy() bool {
	return n.Path != ""
}

// isAncestorOf reports whether other sits in n's subtree, n included.
func (n Node) isAncestorOf(other Node) bool {
	if !n.InHierarchy() || !other.InHierarchy() {
		return false
	}
	return other.Path == n.Path || strings.HasPrefix(other.Path, n.Path+"/")
}

// TreeNode is a hierarchy node with its resolved children.
type TreeNode struct {
	Node
	Children []*TreeNode
}

// BuildForest assembles placed nodes into root trees. Children and roots
// are ordered by name for stable rendering. Nodes whose parent is missing
// from the input are dropped rather than misplaced.
func BuildForest(nodes []Node) []*TreeNode {
	byID := make(map[string]*TreeNode, len(nodes))
	for _, node := range nodes {
		if !node.InHierarchy() {
			continue
		}
		byID[node.ID] = &TreeNode{Node: node}
	}
	var roots []*TreeNode
	for _, tree := range byID {
		if tree.ParentID == nil {
			roots = append(roots, tree)
			continue
		}
		parent, ok := byID[*tree.ParentID]
		if !ok {
			continue
		}
		parent.Children = append(parent.Children, tree)
	}
	sortTrees(roots)
	for _, tree := range byID {
		sortTrees(tree.Children)
	}
	return roots
}

func sortTrees(trees []*TreeNode) {
	sort.Slice(trees, func(i, j int) bool {
		if trees[i].Name != trees[j].Name {
			return trees[i].Name < trees[j].Name
		}
		return trees[i].ID < trees[j].ID
	})
}

// Stats summarizes the state of the hierarchy.
type Stats struct {
	Total      int
	Placed     int
	Roots      int
	Unassigned int
	MaxDepth   int
	AvgDepth   float64
}

// ComputeStats derives hierarchy statistics from the full partner list.
func ComputeStats(nodes []Node) Stats {
	stats := Stats{Total: len(nodes)}
	depthSum := 0
	for _, node := range nodes {
		if !node.InHierarchy() {
			stats.Unassigned++
			continue
		}
		stats.Placed++
		if node.IsRoot {
			stats.Roots++
		}
		if node.Depth > stats.MaxDepth {
			stats.MaxDepth = node.Depth
		}
		depthSum += node.Depth
	}
	if stats.Placed > 0 {
		stats.AvgDepth = float64(depthSum) / float64(stats.Placed)
	}
	return stats
}
