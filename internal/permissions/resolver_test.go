package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveNeitherPresent(t *testing.T) {
	resolved := ResolveEffective(nil, nil)

	assert.Equal(t, SourceDefault, resolved.Source)
	assert.Empty(t, resolved.Permissions.Menu)
	assert.Empty(t, resolved.Permissions.Function)
	assert.Empty(t, resolved.Permissions.Project)
	assert.Empty(t, resolved.Permissions.Data)
	assert.NotNil(t, resolved.Permissions.Menu, "categories stay non-nil so JSON renders arrays")
}

func TestResolveTemplateOnly(t *testing.T) {
	template := &RoleTemplate{
		Role: "finance",
		Permissions: PermissionSet{
			Menu:     []string{"finance.invoices"},
			Function: []string{"finance.approve"},
		},
	}

	resolved := ResolveEffective(template, nil)

	assert.Equal(t, SourceRole, resolved.Source)
	assert.Equal(t, []string{"finance.invoices"}, resolved.Permissions.Menu)
	assert.Equal(t, []string{"finance.approve"}, resolved.Permissions.Function)
}

func TestResolveInheritingOverrideTracksTemplate(t *testing.T) {
	template := &RoleTemplate{
		Role:        "operator",
		Permissions: PermissionSet{Menu: []string{"dashboard.home"}},
	}
	override := &UserOverride{
		UserID:      "u1",
		InheritRole: true,
		Permissions: PermissionSet{Menu: []string{"custom.stale"}},
	}

	resolved := ResolveEffective(template, override)

	assert.Equal(t, SourceRole, resolved.Source)
	assert.Equal(t, []string{"dashboard.home"}, resolved.Permissions.Menu,
		"dormant override sets must not leak while inherit_role is on")
}

func TestResolveOverrideReplacesNotMerges(t *testing.T) {
	template := &RoleTemplate{
		Role: "business",
		Permissions: PermissionSet{
			Menu:     []string{"contracts.list", "contracts.edit"},
			Function: []string{"contracts.approve"},
		},
	}
	override := &UserOverride{
		UserID:      "u1",
		InheritRole: false,
		Permissions: PermissionSet{Menu: []string{"contracts.list"}},
	}

	resolved := ResolveEffective(template, override)

	assert.Equal(t, SourceOverride, resolved.Source)
	assert.Equal(t, []string{"contracts.list"}, resolved.Permissions.Menu)
	assert.Empty(t, resolved.Permissions.Function,
		"empty override category is an explicit empty grant, not a fallthrough")
}

func TestResolveOverrideOnlyNoTemplate(t *testing.T) {
	override := &UserOverride{
		UserID:      "u1",
		InheritRole: false,
		Permissions: PermissionSet{Data: []string{"data.own"}},
	}

	resolved := ResolveEffective(nil, override)

	assert.Equal(t, SourceOverride, resolved.Source)
	assert.Equal(t, []string{"data.own"}, resolved.Permissions.Data)
}

func TestResolveInheritingOverrideWithoutTemplate(t *testing.T) {
	override := &UserOverride{UserID: "u1", InheritRole: true, Permissions: PermissionSet{Menu: []string{"x"}}}

	resolved := ResolveEffective(nil, override)

	assert.Equal(t, SourceDefault, resolved.Source)
	assert.Empty(t, resolved.Permissions.Menu)
}

func TestResolveReturnsCopies(t *testing.T) {
	template := &RoleTemplate{Role: "viewer", Permissions: PermissionSet{Menu: []string{"dashboard.home"}}}

	resolved := ResolveEffective(template, nil)
	resolved.Permissions.Menu[0] = "mutated"

	assert.Equal(t, []string{"dashboard.home"}, template.Permissions.Menu)
}
