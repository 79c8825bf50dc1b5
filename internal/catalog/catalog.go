// Package catalog holds the registry of grantable permission keys. The
// catalog is supplied by configuration (an export of the dynamic menu
// table) and is used to validate keys at the boundary; grouping exists for
// display and bulk toggles only and has no effect on resolution.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Category identifies one of the four independent permission dimensions.
type Category string

const (
	CategoryMenu     Category = "menu"
	CategoryFunction Category = "function"
	CategoryProject  Category = "project"
	CategoryData     Category = "data"
)

// Categories lists all permission categories in display order.
func Categories() []Category {
	return []Category{CategoryMenu, CategoryFunction, CategoryProject, CategoryData}
}

// Valid reports whether the category is one of the four known dimensions.
func (c Category) Valid() bool {
	switch c {
	case CategoryMenu, CategoryFunction, CategoryProject, CategoryData:
		return true
	}
	return false
}

// ParseCategory converts user input into a Category.
func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", fmt.Errorf("catalog: unknown category %q", value)
	}
	return c, nil
}

// Key describes one grantable capability.
type Key struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Group       string `json:"group"`
}

// Group bundles keys for display and tri-state bulk toggles.
type Group struct {
	Name string `json:"name"`
	Keys []Key  `json:"keys"`
}

// Document is the on-disk catalog format.
type Document struct {
	Menu     []Group `json:"menu"`
	Function []Group `json:"function"`
	Project  []Group `json:"project"`
	Data     []Group `json:"data"`
}

// Catalog is an immutable lookup over the configured permission keys.
type Catalog struct {
	groups map[Category][]Group
	keys   map[Category]map[string]Key
}

// New builds a Catalog from a document, rejecting duplicate keys.
func New(doc Document) (*Catalog, error) {
	c := &Catalog{
		groups: map[Category][]Group{
			CategoryMenu:     doc.Menu,
			CategoryFunction: doc.Function,
			CategoryProject:  doc.Project,
			CategoryData:     doc.Data,
		},
		keys: make(map[Category]map[string]Key, 4),
	}
	for category, groups := range c.groups {
		index := make(map[string]Key)
		for _, group := range groups {
			for _, key := range group.Keys {
				trimmed := strings.TrimSpace(key.Key)
				if trimmed == "" {
					return nil, fmt.Errorf("catalog: empty key in category %s group %q", category, group.Name)
				}
				if _, exists := index[trimmed]; exists {
					return nil, fmt.Errorf("catalog: duplicate key %q in category %s", trimmed, category)
				}
				key.Key = trimmed
				if key.Group == "" {
					key.Group = group.Name
				}
				index[trimmed] = key
			}
		}
		c.keys[category] = index
	}
	return c, nil
}

// Load reads a catalog document from a JSON file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return New(doc)
}

// Contains reports whether key is registered under category.
func (c *Catalog) Contains(category Category, key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.keys[category][key]
	return ok
}

// Validate rejects keys that are not registered under the category.
func (c *Catalog) Validate(category Category, keys ...string) error {
	if !category.Valid() {
		return fmt.Errorf("catalog: unknown category %q", category)
	}
	for _, key := range keys {
		if !c.Contains(category, key) {
			return fmt.Errorf("catalog: unknown %s permission %q", category, key)
		}
	}
	return nil
}

// Keys returns all registered keys of one category, sorted.
func (c *Catalog) Keys(category Category) []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.keys[category]))
	for key := range c.keys[category] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Document reassembles the catalog into its on-disk shape, used by the
// catalog endpoint so clients render the same grouping the file defines.
func (c *Catalog) Document() Document {
	if c == nil {
		return Document{}
	}
	return Document{
		Menu:     c.groups[CategoryMenu],
		Function: c.groups[CategoryFunction],
		Project:  c.groups[CategoryProject],
		Data:     c.groups[CategoryData],
	}
}

// Groups returns the display groups of one category.
func (c *Catalog) Groups(category Category) []Group {
	if c == nil {
		return nil
	}
	return c.groups[category]
}

// GroupKeys returns the key names of one display group, or nil when the
// group does not exist.
func (c *Catalog) GroupKeys(category Category, groupName string) []string {
	if c == nil {
		return nil
	}
	for _, group := range c.groups[category] {
		if group.Name != groupName {
			continue
		}
		keys := make([]string, 0, len(group.Keys))
		for _, key := range group.Keys {
			keys = append(keys, key.Key)
		}
		return keys
	}
	return nil
}
