package permissions

// ResolveEffective merges a role template with an optional user override.
// The function is total and fail-closed: a missing template or override
// degrades to empty sets, never to an error.
//
// Precedence:
//   - override present with InheritRole=false: the override's sets verbatim
//     (replace, not merge — an empty category is an explicit empty grant);
//   - otherwise the current role template's sets;
//   - neither present: all-empty sets.
func ResolveEffective(template *RoleTemplate, override *UserOverride) ResolvedPermissions {
	if override != nil && !override.InheritRole {
		return ResolvedPermissions{
			Permissions: override.Permissions.Clone(),
			Source:      SourceOverride,
		}
	}
	if template != nil {
		return ResolvedPermissions{
			Permissions: template.Permissions.Clone(),
			Source:      SourceRole,
		}
	}
	return ResolvedPermissions{
		Permissions: PermissionSet{}.Clone(),
		Source:      SourceDefault,
	}
}
