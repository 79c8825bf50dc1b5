package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freightdeck/freightdeck/internal/catalog"
	"github.com/freightdeck/freightdeck/internal/platform/httpx"
	"github.com/freightdeck/freightdeck/internal/shared"
)

// Authorizer decides whether the principal may use a function permission.
type Authorizer interface {
	Allow(ctx context.Context, principal shared.Principal, functionKey string) error
}

// Handler exposes the ledger viewer endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   Authorizer
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, authz Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleQuery)
	r.Get("/export.csv", h.handleExport)
}

type entryDTO struct {
	ID             int64           `json:"id"`
	Action         string          `json:"action"`
	PermissionType string          `json:"permission_type"`
	PermissionKey  string          `json:"permission_key,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Role           string          `json:"role,omitempty"`
	TargetUserID   *string         `json:"target_user_id,omitempty"`
	ProjectID      *string         `json:"project_id,omitempty"`
	OldValue       json.RawMessage `json:"old_value,omitempty"`
	NewValue       json.RawMessage `json:"new_value,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

type queryResponse struct {
	Entries []entryDTO `json:"entries"`
	Page    int        `json:"page"`
	HasNext bool       `json:"has_next"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	entries := make([]entryDTO, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, toDTO(entry))
	}
	httpx.JSON(w, http.StatusOK, queryResponse{
		Entries: entries,
		Page:    result.Paging.Page,
		HasNext: result.Paging.HasNext,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	csvBytes, err := WriteCSV(entries)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="permission-audit.csv"`)
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) authorize(r *http.Request) error {
	if h.authz == nil {
		return nil
	}
	principal := shared.PrincipalFromContext(r.Context())
	return h.authz.Allow(r.Context(), principal, "settings.audit_logs")
}

func parseFilters(r *http.Request) (Filters, error) {
	query := r.URL.Query()
	filters := Filters{
		UserID:    query.Get("user_id"),
		CreatedBy: query.Get("created_by"),
	}
	if raw := query.Get("action"); raw != "" {
		action := Action(raw)
		if !action.Valid() {
			return Filters{}, errUnknown("action", raw)
		}
		filters.Action = action
	}
	if raw := query.Get("permission_type"); raw != "" {
		category, err := catalog.ParseCategory(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.PermissionType = category
	}
	if raw := query.Get("from"); raw != "" {
		from, err := parseTime(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.From = from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := parseTime(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.To = to
	}
	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return Filters{}, errUnknown("page", raw)
		}
		filters.Page = page
	}
	if raw := query.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return Filters{}, errUnknown("page_size", raw)
		}
		filters.PageSize = size
	}
	return filters, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errUnknown("time", raw)
	}
	return t, nil
}

func errUnknown(field, value string) error {
	return &filterError{field: field, value: value}
}

type filterError struct {
	field string
	value string
}

func (e *filterError) Error() string {
	return "invalid " + e.field + " value " + strconv.Quote(e.value)
}

func toDTO(entry Entry) entryDTO {
	return entryDTO{
		ID:             entry.ID,
		Action:         string(entry.Action),
		PermissionType: string(entry.PermissionType),
		PermissionKey:  entry.PermissionKey,
		UserID:         entry.UserID,
		Role:           entry.Role,
		TargetUserID:   entry.TargetUserID,
		ProjectID:      entry.ProjectID,
		OldValue:       entry.OldValue,
		NewValue:       entry.NewValue,
		Reason:         entry.Reason,
		CreatedBy:      entry.CreatedBy,
		CreatedAt:      entry.CreatedAt,
	}
}
