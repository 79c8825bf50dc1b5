package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/freightdeck/freightdeck/internal/catalog"
	"github.com/freightdeck/freightdeck/internal/platform/httpx"
	"github.com/freightdeck/freightdeck/internal/shared"
)

// idempotencyStore is the slice of shared.IdempotencyStore the handler
// uses; nil disables Idempotency-Key handling.
type idempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes the permission management endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	catalog     *catalog.Catalog
	idempotency idempotencyStore
	validate    *validator.Validate
}

// NewHandler constructs the permissions HTTP handler. The idempotency
// store may be nil, in which case Idempotency-Key headers are ignored.
func NewHandler(logger *slog.Logger, service *Service, cat *catalog.Catalog, idem *shared.IdempotencyStore) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:   logger,
		service:  service,
		catalog:  cat,
		validate: validator.New(),
	}
	if idem != nil {
		h.idempotency = idem
	}
	return h
}

// MountRoutes registers the permission routes. Mutations are guarded by
// the settings.permissions function permission; reads only require a
// principal.
func (h *Handler) MountRoutes(r chi.Router, guard *Guard) {
	r.Get("/catalog", h.handleCatalog)
	r.Get("/resolve", h.handleResolve)
	r.Get("/roles", h.handleListRoles)
	r.Get("/roles/{role}", h.handleGetRole)
	r.Get("/users/{userID}/overrides", h.handleListOverrides)

	r.Group(func(r chi.Router) {
		if guard != nil {
			r.Use(guard.RequireFunction("settings.permissions"))
		}
		r.Post("/roles/{role}/toggle", h.handleToggleRole)
		r.Post("/roles/{role}/toggle-group", h.handleToggleRoleGroup)
		r.Post("/users/{userID}/toggle", h.handleToggleUser)
		r.Post("/users/{userID}/toggle-group", h.handleToggleUserGroup)
		r.Post("/users/{userID}/inherit", h.handleSetInherit)
		r.Delete("/users/{userID}/overrides", h.handleDeleteOverride)
	})
}

type permissionSetDTO struct {
	Menu     []string `json:"menu_permissions"`
	Function []string `json:"function_permissions"`
	Project  []string `json:"project_permissions"`
	Data     []string `json:"data_permissions"`
}

func toSetDTO(set PermissionSet) permissionSetDTO {
	set = set.Clone()
	return permissionSetDTO{Menu: set.Menu, Function: set.Function, Project: set.Project, Data: set.Data}
}

type roleTemplateDTO struct {
	Role        string           `json:"role"`
	Permissions permissionSetDTO `json:"permissions"`
	Description string           `json:"description,omitempty"`
	Color       string           `json:"color,omitempty"`
	IsActive    bool             `json:"is_active"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func toRoleDTO(template RoleTemplate) roleTemplateDTO {
	return roleTemplateDTO{
		Role:        template.Role,
		Permissions: toSetDTO(template.Permissions),
		Description: template.Description,
		Color:       template.Color,
		IsActive:    template.IsActive,
		UpdatedAt:   template.UpdatedAt,
	}
}

type overrideDTO struct {
	UserID      string           `json:"user_id"`
	ProjectID   *string          `json:"project_id,omitempty"`
	Permissions permissionSetDTO `json:"permissions"`
	InheritRole bool             `json:"inherit_role"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func toOverrideDTO(override UserOverride) overrideDTO {
	return overrideDTO{
		UserID:      override.UserID,
		ProjectID:   override.ProjectID,
		Permissions: toSetDTO(override.Permissions),
		InheritRole: override.InheritRole,
		UpdatedAt:   override.UpdatedAt,
	}
}

type resolveResponse struct {
	Permissions permissionSetDTO `json:"permissions"`
	Source      string           `json:"source"`
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "catalog not configured")
		return
	}
	httpx.JSON(w, http.StatusOK, h.catalog.Document())
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	role := query.Get("role")
	if userID == "" {
		principal := shared.PrincipalFromContext(r.Context())
		userID = principal.UserID
		if role == "" {
			role = principal.Role
		}
	}
	if userID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id required")
		return
	}
	var projectID *string
	if raw := query.Get("project_id"); raw != "" {
		projectID = &raw
	}
	resolved, err := h.service.Resolve(r.Context(), userID, role, projectID)
	if err != nil {
		h.logger.Error("resolve permissions", slog.String("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resolveResponse{
		Permissions: toSetDTO(resolved.Permissions),
		Source:      string(resolved.Source),
	})
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.RoleTemplates(r.Context())
	if err != nil {
		h.logger.Error("list role templates", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleTemplateDTO, 0, len(templates))
	for _, template := range templates {
		out = append(out, toRoleDTO(template))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	template, err := h.service.RoleTemplateFor(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleDTO(template))
}

func (h *Handler) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := h.service.Overrides(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("list overrides", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]overrideDTO, 0, len(overrides))
	for _, override := range overrides {
		out = append(out, toOverrideDTO(override))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": out})
}

type toggleRequest struct {
	PermissionType string `json:"permission_type" validate:"required"`
	PermissionKey  string `json:"permission_key" validate:"required"`
	Reason         string `json:"reason" validate:"max=500"`
}

func (h *Handler) handleToggleRole(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	category, ok := h.decodeToggle(w, r, &req)
	if !ok {
		return
	}
	release, ok := h.claimIdempotency(w, r, "permissions")
	if !ok {
		return
	}
	template, err := h.service.ToggleRolePermission(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "role"), category, req.PermissionKey, req.Reason)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleDTO(template))
}

type groupToggleRequest struct {
	PermissionType string `json:"permission_type" validate:"required"`
	Group          string `json:"group" validate:"required"`
	Reason         string `json:"reason" validate:"max=500"`
}

func (h *Handler) handleToggleRoleGroup(w http.ResponseWriter, r *http.Request) {
	var req groupToggleRequest
	if err := h.decodeBody(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category, err := catalog.ParseCategory(req.PermissionType)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	release, ok := h.claimIdempotency(w, r, "permissions")
	if !ok {
		return
	}
	template, err := h.service.ToggleRoleGroup(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "role"), category, req.Group, req.Reason)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleDTO(template))
}

type userToggleRequest struct {
	PermissionType string  `json:"permission_type" validate:"required"`
	PermissionKey  string  `json:"permission_key" validate:"required"`
	Role           string  `json:"role" validate:"required"`
	ProjectID      *string `json:"project_id,omitempty"`
	Reason         string  `json:"reason" validate:"max=500"`
}

func (h *Handler) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	var req userToggleRequest
	if err := h.decodeBody(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category, err := catalog.ParseCategory(req.PermissionType)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	release, ok := h.claimIdempotency(w, r, "permissions")
	if !ok {
		return
	}
	override, err := h.service.ToggleUserPermission(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "userID"), req.Role, req.ProjectID, category, req.PermissionKey, req.Reason)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOverrideDTO(override))
}

type userGroupToggleRequest struct {
	PermissionType string  `json:"permission_type" validate:"required"`
	Group          string  `json:"group" validate:"required"`
	Role           string  `json:"role" validate:"required"`
	ProjectID      *string `json:"project_id,omitempty"`
	Reason         string  `json:"reason" validate:"max=500"`
}

func (h *Handler) handleToggleUserGroup(w http.ResponseWriter, r *http.Request) {
	var req userGroupToggleRequest
	if err := h.decodeBody(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category, err := catalog.ParseCategory(req.PermissionType)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	release, ok := h.claimIdempotency(w, r, "permissions")
	if !ok {
		return
	}
	override, err := h.service.ToggleUserGroup(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "userID"), req.Role, req.ProjectID, category, req.Group, req.Reason)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOverrideDTO(override))
}

type inheritRequest struct {
	InheritRole bool    `json:"inherit_role"`
	Role        string  `json:"role" validate:"required"`
	ProjectID   *string `json:"project_id,omitempty"`
	Reason      string  `json:"reason" validate:"max=500"`
}

func (h *Handler) handleSetInherit(w http.ResponseWriter, r *http.Request) {
	var req inheritRequest
	if err := h.decodeBody(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	release, ok := h.claimIdempotency(w, r, "permissions")
	if !ok {
		return
	}
	override, err := h.service.SetInheritRole(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "userID"), req.Role, req.ProjectID, req.InheritRole, req.Reason)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOverrideDTO(override))
}

func (h *Handler) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	var projectID *string
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		projectID = &raw
	}
	reason := r.URL.Query().Get("reason")
	err := h.service.DeleteOverride(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "userID"), projectID, reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeBody(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validate.Struct(target)
}

func (h *Handler) decodeToggle(w http.ResponseWriter, r *http.Request, req *toggleRequest) (catalog.Category, bool) {
	if err := h.decodeBody(r, req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return "", false
	}
	category, err := catalog.ParseCategory(req.PermissionType)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return "", false
	}
	return category, true
}

// claimIdempotency consumes an optional Idempotency-Key header. A replayed
// key short-circuits with 409 before any mutation runs. The returned
// release func frees the key again; handlers call it when the guarded
// mutation fails, so the client can retry with the same key.
func (h *Handler) claimIdempotency(w http.ResponseWriter, r *http.Request, module string) (func(), bool) {
	noop := func() {}
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idempotency == nil {
		return noop, true
	}
	if _, err := uuid.Parse(key); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Idempotency-Key must be a UUID")
		return noop, false
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "request already processed")
			return noop, false
		}
		h.logger.Error("idempotency check", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "idempotency check failed")
		return noop, false
	}
	release := func() {
		if err := h.idempotency.Delete(r.Context(), key); err != nil {
			h.logger.Error("idempotency release", slog.String("key", key), slog.Any("error", err))
		}
	}
	return release, true
}
