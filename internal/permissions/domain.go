package permissions

import (
	"sort"
	"strings"
	"time"

	"github.com/freightdeck/freightdeck/internal/catalog"
)

// PermissionSet holds one deduplicated key set per category. The four
// dimensions are independent; grouping inside a category is display-only.
type PermissionSet struct {
	Menu     []string
	Function []string
	Project  []string
	Data     []string
}

// Category returns the keys of one category.
func (s PermissionSet) Category(category catalog.Category) []string {
	switch category {
	case catalog.CategoryMenu:
		return s.Menu
	case catalog.CategoryFunction:
		return s.Function
	case catalog.CategoryProject:
		return s.Project
	case catalog.CategoryData:
		return s.Data
	}
	return nil
}

// SetCategory replaces the keys of one category.
func (s *PermissionSet) SetCategory(category catalog.Category, keys []string) {
	switch category {
	case catalog.CategoryMenu:
		s.Menu = keys
	case catalog.CategoryFunction:
		s.Function = keys
	case catalog.CategoryProject:
		s.Project = keys
	case catalog.CategoryData:
		s.Data = keys
	}
}

// Clone returns a deep copy so callers never share backing arrays with a
// store or cache.
func (s PermissionSet) Clone() PermissionSet {
	return PermissionSet{
		Menu:     cloneKeys(s.Menu),
		Function: cloneKeys(s.Function),
		Project:  cloneKeys(s.Project),
		Data:     cloneKeys(s.Data),
	}
}

// Normalize trims, deduplicates and sorts every category.
func (s PermissionSet) Normalize() PermissionSet {
	return PermissionSet{
		Menu:     normalizeKeys(s.Menu),
		Function: normalizeKeys(s.Function),
		Project:  normalizeKeys(s.Project),
		Data:     normalizeKeys(s.Data),
	}
}

// Has reports whether key is present in the given category.
func (s PermissionSet) Has(category catalog.Category, key string) bool {
	for _, existing := range s.Category(category) {
		if existing == key {
			return true
		}
	}
	return false
}

func cloneKeys(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// toggleKey flips membership of key and reports whether it was added.
func toggleKey(keys []string, key string) ([]string, bool) {
	for i, existing := range keys {
		if existing == key {
			out := make([]string, 0, len(keys)-1)
			out = append(out, keys[:i]...)
			out = append(out, keys[i+1:]...)
			return out, false
		}
	}
	return normalizeKeys(append(cloneKeys(keys), key)), true
}

// containsAll reports whether every key of group is present.
func containsAll(keys, group []string) bool {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	for _, key := range group {
		if _, ok := set[key]; !ok {
			return false
		}
	}
	return true
}

// RoleTemplate is the default permission set shared by every user of a
// role. A role without a template grants nothing.
type RoleTemplate struct {
	Role        string
	Permissions PermissionSet
	Description string
	Color       string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserOverride is a per-(user, project-or-global) record. When InheritRole
// is true the stored sets are dormant and resolution tracks the live role
// template; when false the stored sets fully replace the template. Role
// records the role the user held when the row was last written, so batch
// jobs can resolve the scope under the same cache key a request would use.
type UserOverride struct {
	UserID      string
	ProjectID   *string
	Role        string
	Permissions PermissionSet
	InheritRole bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Source names where a resolved permission set came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceRole     Source = "role"
	SourceDefault  Source = "default"
)

// ResolvedPermissions is the effective permission set for one user in one
// scope.
type ResolvedPermissions struct {
	Permissions PermissionSet
	Source      Source
}

// ScopeKey renders a (user, project) pair for cache keys and log fields.
// The global scope is spelled "-" so it never collides with a project id.
func ScopeKey(userID string, projectID *string) string {
	if projectID == nil {
		return userID + ":-"
	}
	return userID + ":" + *projectID
}
