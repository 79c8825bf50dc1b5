package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/freightdeck/freightdeck/internal/audit"
	"github.com/freightdeck/freightdeck/internal/catalog"
	"github.com/freightdeck/freightdeck/internal/observability"
	"github.com/freightdeck/freightdeck/internal/shared"
)

// AdminRole always passes function-permission checks.
const AdminRole = "admin"

// Service orchestrates permission resolution and mutation. Mutations run
// inside a single transaction per target (row lock + ledger append), so
// concurrent toggles serialize instead of losing updates and an audit
// entry exists exactly when its data write committed.
type Service struct {
	store   Store
	catalog *catalog.Catalog
	cache   *Cache
	metrics *observability.Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService constructs the permission service. Cache and metrics may be
// nil.
func NewService(store Store, cat *catalog.Catalog, cache *Cache, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, catalog: cat, cache: cache, metrics: metrics, logger: logger}
}

// Resolve computes the effective permission set for a user in an optional
// project scope. Resolution is total: unknown roles and users yield empty
// sets rather than errors; only store failures propagate. A project-scoped
// request that has no project row resolves from the role template — it
// never falls back to the user's global override.
func (s *Service) Resolve(ctx context.Context, userID, role string, projectID *string) (ResolvedPermissions, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetResolved(ctx, role, userID, projectID)
		if err != nil {
			s.logger.Warn("permission cache read", slog.Any("error", err))
		} else if ok {
			s.observeResolution(cached.Source)
			cached.Permissions = cached.Permissions.Clone()
			return cached, nil
		}
	}

	flightKey := "resolve:" + role + ":" + ScopeKey(userID, projectID)
	value, err, _ := s.group.Do(flightKey, func() (any, error) {
		template, err := s.store.RoleTemplate(ctx, role)
		if err != nil {
			return ResolvedPermissions{}, err
		}
		override, err := s.store.Override(ctx, userID, projectID)
		if err != nil {
			return ResolvedPermissions{}, err
		}
		resolved := ResolveEffective(template, override)
		if s.cache != nil {
			if err := s.cache.SetResolved(ctx, role, userID, projectID, resolved); err != nil {
				s.logger.Warn("permission cache write", slog.Any("error", err))
			}
		}
		return resolved, nil
	})
	if err != nil {
		return ResolvedPermissions{}, fmt.Errorf("permissions: resolve %s: %w", ScopeKey(userID, projectID), err)
	}
	resolved := value.(ResolvedPermissions)
	s.observeResolution(resolved.Source)
	resolved.Permissions = resolved.Permissions.Clone()
	return resolved, nil
}

// RoleTemplates lists all configured templates.
func (s *Service) RoleTemplates(ctx context.Context) ([]RoleTemplate, error) {
	return s.store.ListRoleTemplates(ctx)
}

// RoleTemplateFor returns one template; absent templates surface as
// shared.ErrNotFound for the read API (resolution itself treats them as
// empty).
func (s *Service) RoleTemplateFor(ctx context.Context, role string) (RoleTemplate, error) {
	template, err := s.store.RoleTemplate(ctx, role)
	if err != nil {
		return RoleTemplate{}, err
	}
	if template == nil {
		return RoleTemplate{}, fmt.Errorf("%w: role template %s", shared.ErrNotFound, role)
	}
	return *template, nil
}

// Overrides lists every override row of one user.
func (s *Service) Overrides(ctx context.Context, userID string) ([]UserOverride, error) {
	return s.store.ListOverrides(ctx, userID)
}

// ToggleRolePermission flips one key in one category of a role template,
// creating the template when absent.
func (s *Service) ToggleRolePermission(ctx context.Context, actor shared.Principal, role string, category catalog.Category, key, reason string) (RoleTemplate, error) {
	if err := s.validateMutation(actor, category, key); err != nil {
		return RoleTemplate{}, err
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return RoleTemplate{}, fmt.Errorf("%w: role required", shared.ErrValidation)
	}

	var result RoleTemplate
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		template, err := tx.LockRoleTemplate(ctx, role)
		if err != nil {
			return err
		}
		if template == nil {
			template = &RoleTemplate{Role: role, Permissions: PermissionSet{}.Clone().Normalize(), IsActive: true}
		}
		oldKeys := cloneKeys(template.Permissions.Category(category))
		newKeys, added := toggleKey(template.Permissions.Category(category), key)
		template.Permissions.SetCategory(category, newKeys)
		if err := tx.SaveRoleTemplate(ctx, template); err != nil {
			return err
		}
		action := audit.ActionRevoke
		if added {
			action = audit.ActionGrant
		}
		if err := tx.AppendAudit(ctx, audit.Entry{
			Action:         action,
			PermissionType: category,
			PermissionKey:  key,
			Role:           role,
			OldValue:       audit.Snapshot(oldKeys),
			NewValue:       audit.Snapshot(newKeys),
			Reason:         reason,
			CreatedBy:      actor.UserID,
		}); err != nil {
			return fmt.Errorf("permissions: audit role toggle: %w", err)
		}
		result = *template
		return nil
	})
	if err != nil {
		return RoleTemplate{}, err
	}
	s.invalidateRole(ctx, role)
	s.observeMutation("toggle_role_permission")
	return result, nil
}

// ToggleUserPermission flips one key in one category of a user override.
// When no override row exists for the exact (user, project) scope, one is
// synthesized from the user's current role template with inherit_role set
// to false: the first explicit toggle is the signal that the user stops
// tracking the role. Once a row exists the template is never consulted
// again.
func (s *Service) ToggleUserPermission(ctx context.Context, actor shared.Principal, userID, role string, projectID *string, category catalog.Category, key, reason string) (UserOverride, error) {
	if err := s.validateMutation(actor, category, key); err != nil {
		return UserOverride{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return UserOverride{}, fmt.Errorf("%w: user id required", shared.ErrValidation)
	}

	var result UserOverride
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		override, err := tx.LockOverride(ctx, userID, projectID)
		if err != nil {
			return err
		}
		if override == nil {
			override, err = s.synthesizeOverride(ctx, tx, actor, userID, role, projectID)
			if err != nil {
				return err
			}
		}
		refreshRole(override, role)
		oldKeys := cloneKeys(override.Permissions.Category(category))
		newKeys, added := toggleKey(override.Permissions.Category(category), key)
		override.Permissions.SetCategory(category, newKeys)
		if err := tx.SaveOverride(ctx, override); err != nil {
			return err
		}
		action := audit.ActionRevoke
		if added {
			action = audit.ActionGrant
		}
		if err := tx.AppendAudit(ctx, audit.Entry{
			Action:         action,
			PermissionType: category,
			PermissionKey:  key,
			UserID:         userID,
			TargetUserID:   targetFor(actor, userID),
			ProjectID:      projectID,
			OldValue:       audit.Snapshot(oldKeys),
			NewValue:       audit.Snapshot(newKeys),
			Reason:         reason,
			CreatedBy:      actor.UserID,
		}); err != nil {
			return fmt.Errorf("permissions: audit user toggle: %w", err)
		}
		result = *override
		return nil
	})
	if err != nil {
		return UserOverride{}, err
	}
	s.invalidateUser(ctx, userID)
	s.observeMutation("toggle_user_permission")
	return result, nil
}

// SetInheritRole sets the inheritance flag without touching the stored
// permission arrays; a custom set staged before re-enabling inheritance
// survives and is restored when the flag is turned off again.
func (s *Service) SetInheritRole(ctx context.Context, actor shared.Principal, userID, role string, projectID *string, value bool, reason string) (UserOverride, error) {
	if actor.IsZero() {
		return UserOverride{}, fmt.Errorf("%w: acting principal required", shared.ErrUnauthorized)
	}
	if strings.TrimSpace(userID) == "" {
		return UserOverride{}, fmt.Errorf("%w: user id required", shared.ErrValidation)
	}

	var result UserOverride
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		override, err := tx.LockOverride(ctx, userID, projectID)
		if err != nil {
			return err
		}
		oldValue := true // no row behaves as pure inheritance
		if override == nil {
			override, err = s.synthesizeOverride(ctx, tx, actor, userID, role, projectID)
			if err != nil {
				return err
			}
		} else {
			oldValue = override.InheritRole
		}
		refreshRole(override, role)
		override.InheritRole = value
		if err := tx.SaveOverride(ctx, override); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.Entry{
			Action:         audit.ActionInherit,
			PermissionType: catalog.CategoryFunction,
			PermissionKey:  "inherit_role",
			UserID:         userID,
			TargetUserID:   targetFor(actor, userID),
			ProjectID:      projectID,
			OldValue:       audit.SnapshotBool(oldValue),
			NewValue:       audit.SnapshotBool(value),
			Reason:         reason,
			CreatedBy:      actor.UserID,
		}); err != nil {
			return fmt.Errorf("permissions: audit inherit flag: %w", err)
		}
		result = *override
		return nil
	})
	if err != nil {
		return UserOverride{}, err
	}
	s.invalidateUser(ctx, userID)
	s.observeMutation("set_inherit_role")
	return result, nil
}

// ToggleRoleGroup applies the tri-state group toggle to a role template:
// when every key of the group is present all of them are removed,
// otherwise all of them are added.
func (s *Service) ToggleRoleGroup(ctx context.Context, actor shared.Principal, role string, category catalog.Category, groupName, reason string) (RoleTemplate, error) {
	if actor.IsZero() {
		return RoleTemplate{}, fmt.Errorf("%w: acting principal required", shared.ErrUnauthorized)
	}
	groupKeys, err := s.groupKeys(category, groupName)
	if err != nil {
		return RoleTemplate{}, err
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return RoleTemplate{}, fmt.Errorf("%w: role required", shared.ErrValidation)
	}

	var result RoleTemplate
	txErr := s.store.InTx(ctx, func(tx MutationStore) error {
		template, err := tx.LockRoleTemplate(ctx, role)
		if err != nil {
			return err
		}
		if template == nil {
			template = &RoleTemplate{Role: role, Permissions: PermissionSet{}.Clone().Normalize(), IsActive: true}
		}
		oldKeys := cloneKeys(template.Permissions.Category(category))
		newKeys := applyGroupToggle(oldKeys, groupKeys)
		template.Permissions.SetCategory(category, newKeys)
		if err := tx.SaveRoleTemplate(ctx, template); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.Entry{
			Action:         audit.ActionModify,
			PermissionType: category,
			PermissionKey:  groupName,
			Role:           role,
			OldValue:       audit.Snapshot(oldKeys),
			NewValue:       audit.Snapshot(newKeys),
			Reason:         reason,
			CreatedBy:      actor.UserID,
		}); err != nil {
			return fmt.Errorf("permissions: audit role group toggle: %w", err)
		}
		result = *template
		return nil
	})
	if txErr != nil {
		return RoleTemplate{}, txErr
	}
	s.invalidateRole(ctx, role)
	s.observeMutation("toggle_role_group")
	return result, nil
}

// ToggleUserGroup applies the tri-state group toggle to a user override,
// synthesizing the override from the role template when absent.
func (s *Service) ToggleUserGroup(ctx context.Context, actor shared.Principal, userID, role string, projectID *string, category catalog.Category, groupName, reason string) (UserOverride, error) {
	if actor.IsZero() {
		return UserOverride{}, fmt.Errorf("%w: acting principal required", shared.ErrUnauthorized)
	}
	groupKeys, err := s.groupKeys(category, groupName)
	if err != nil {
		return UserOverride{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return UserOverride{}, fmt.Errorf("%w: user id required", shared.ErrValidation)
	}

	var result UserOverride
	txErr := s.store.InTx(ctx, func(tx MutationStore) error {
		override, err := tx.LockOverride(ctx, userID, projectID)
		if err != nil {
			return err
		}
		if override == nil {
			override, err = s.synthesizeOverride(ctx, tx, actor, userID, role, projectID)
			if err != nil {
				return err
			}
		}
		refreshRole(override, role)
		oldKeys := cloneKeys(override.Permissions.Category(category))
		newKeys := applyGroupToggle(oldKeys, groupKeys)
		override.Permissions.SetCategory(category, newKeys)
		if err := tx.SaveOverride(ctx, override); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.Entry{
			Action:         audit.ActionModify,
			PermissionType: category,
			PermissionKey:  groupName,
			UserID:         userID,
			TargetUserID:   targetFor(actor, userID),
			ProjectID:      projectID,
			OldValue:       audit.Snapshot(oldKeys),
			NewValue:       audit.Snapshot(newKeys),
			Reason:         reason,
			CreatedBy:      actor.UserID,
		}); err != nil {
			return fmt.Errorf("permissions: audit user group toggle: %w", err)
		}
		result = *override
		return nil
	})
	if txErr != nil {
		return UserOverride{}, txErr
	}
	s.invalidateUser(ctx, userID)
	s.observeMutation("toggle_user_group")
	return result, nil
}

// DeleteOverride removes an override row, reverting the user to pure role
// inheritance for that scope.
func (s *Service) DeleteOverride(ctx context.Context, actor shared.Principal, userID string, projectID *string, reason string) error {
	if actor.IsZero() {
		return fmt.Errorf("%w: acting principal required", shared.ErrUnauthorized)
	}
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		override, err := tx.LockOverride(ctx, userID, projectID)
		if err != nil {
			return err
		}
		if override == nil {
			return fmt.Errorf("%w: override %s", shared.ErrNotFound, ScopeKey(userID, projectID))
		}
		deleted, err := tx.DeleteOverride(ctx, userID, projectID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: override %s", shared.ErrNotFound, ScopeKey(userID, projectID))
		}
		oldValue, err := json.Marshal(map[string][]string{
			"menu_permissions":     override.Permissions.Menu,
			"function_permissions": override.Permissions.Function,
			"project_permissions":  override.Permissions.Project,
			"data_permissions":     override.Permissions.Data,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.Entry{
			Action:         audit.ActionInherit,
			PermissionType: catalog.CategoryFunction,
			PermissionKey:  "override_removed",
			UserID:         userID,
			TargetUserID:   targetFor(actor, userID),
			ProjectID:      projectID,
			OldValue:       oldValue,
			NewValue:       json.RawMessage("null"),
			Reason:         reason,
			CreatedBy:      actor.UserID,
		}); err != nil {
			return fmt.Errorf("permissions: audit override delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.observeMutation("delete_override")
	return nil
}

// Allow reports whether the principal may use a function permission.
// Admins always pass; everyone else must carry the key in their resolved
// global function set.
func (s *Service) Allow(ctx context.Context, principal shared.Principal, functionKey string) error {
	if principal.IsZero() {
		return fmt.Errorf("%w: no principal", shared.ErrUnauthorized)
	}
	if principal.Role == AdminRole {
		return nil
	}
	resolved, err := s.Resolve(ctx, principal.UserID, principal.Role, nil)
	if err != nil {
		return err
	}
	if resolved.Permissions.Has(catalog.CategoryFunction, functionKey) {
		return nil
	}
	if resolved.Permissions.Has(catalog.CategoryMenu, functionKey) {
		return nil
	}
	return fmt.Errorf("%w: missing %s", shared.ErrForbidden, functionKey)
}

func (s *Service) synthesizeOverride(ctx context.Context, tx MutationStore, actor shared.Principal, userID, role string, projectID *string) (*UserOverride, error) {
	baseline := PermissionSet{}.Clone()
	if strings.TrimSpace(role) != "" {
		template, err := tx.LockRoleTemplate(ctx, role)
		if err != nil {
			return nil, err
		}
		if template != nil {
			baseline = template.Permissions.Clone()
		}
	}
	return &UserOverride{
		UserID:      userID,
		ProjectID:   projectID,
		Role:        strings.TrimSpace(role),
		Permissions: baseline,
		InheritRole: false,
		CreatedBy:   actor.UserID,
	}, nil
}

// refreshRole keeps the recorded role current so warmup jobs resolve the
// scope under the cache key requests actually use.
func refreshRole(override *UserOverride, role string) {
	if role = strings.TrimSpace(role); role != "" {
		override.Role = role
	}
}

func (s *Service) validateMutation(actor shared.Principal, category catalog.Category, key string) error {
	if actor.IsZero() {
		return fmt.Errorf("%w: acting principal required", shared.ErrUnauthorized)
	}
	if !category.Valid() {
		return fmt.Errorf("%w: unknown category %q", shared.ErrValidation, category)
	}
	if s.catalog != nil {
		if err := s.catalog.Validate(category, key); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
	}
	return nil
}

func (s *Service) groupKeys(category catalog.Category, groupName string) ([]string, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", shared.ErrValidation, category)
	}
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not configured", shared.ErrValidation)
	}
	keys := s.catalog.GroupKeys(category, groupName)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: unknown %s group %q", shared.ErrValidation, category, groupName)
	}
	return keys, nil
}

func (s *Service) invalidateRole(ctx context.Context, role string) {
	if err := s.cache.InvalidateRole(ctx, role); err != nil {
		s.logger.Warn("invalidate role cache", slog.String("role", role), slog.Any("error", err))
	}
}

func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("invalidate user cache", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) observeResolution(source Source) {
	if s.metrics != nil {
		s.metrics.ObserveResolution(string(source))
	}
}

func (s *Service) observeMutation(operation string) {
	if s.metrics != nil {
		s.metrics.ObserveMutation(operation)
	}
}

func applyGroupToggle(current, groupKeys []string) []string {
	if containsAll(current, groupKeys) {
		drop := make(map[string]struct{}, len(groupKeys))
		for _, key := range groupKeys {
			drop[key] = struct{}{}
		}
		out := make([]string, 0, len(current))
		for _, key := range current {
			if _, remove := drop[key]; !remove {
				out = append(out, key)
			}
		}
		return out
	}
	return normalizeKeys(append(cloneKeys(current), groupKeys...))
}

func targetFor(actor shared.Principal, userID string) *string {
	if actor.UserID == userID {
		return nil
	}
	return &userID
}
