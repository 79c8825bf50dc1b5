package partners

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/freightdeck/freightdeck/internal/platform/httpx"
	"github.com/freightdeck/freightdeck/internal/shared"
)

// Handler exposes the hierarchy endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the partner HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the hierarchy routes. mutationGuard wraps the
// placement-changing endpoints.
func (h *Handler) MountRoutes(r chi.Router, mutationGuard func(http.Handler) http.Handler) {
	r.Get("/tree", h.handleTree)
	r.Get("/unassigned", h.handleUnassigned)
	r.Get("/stats", h.handleStats)

	r.Group(func(r chi.Router) {
		if mutationGuard != nil {
			r.Use(mutationGuard)
		}
		r.Post("/{id}/root", h.handleSetRoot)
		r.Delete("/{id}/root", h.handleCancelRoot)
		r.Post("/roots", h.handleBatchSetRoot)
		r.Post("/{id}/attach", h.handleAttach)
		r.Post("/{id}/detach", h.handleDetach)
	})
}

type nodeDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FullName  string    `json:"full_name,omitempty"`
	ParentID  *string   `json:"parent_id,omitempty"`
	IsRoot    bool      `json:"is_root"`
	Depth     int       `json:"depth"`
	Path      string    `json:"path,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type treeNodeDTO struct {
	nodeDTO
	Children []treeNodeDTO `json:"children"`
}

func toNodeDTO(node Node) nodeDTO {
	return nodeDTO{
		ID:        node.ID,
		Name:      node.Name,
		FullName:  node.FullName,
		ParentID:  node.ParentID,
		IsRoot:    node.IsRoot,
		Depth:     node.Depth,
		Path:      node.Path,
		UpdatedAt: node.UpdatedAt,
	}
}

func toTreeDTO(tree *TreeNode) treeNodeDTO {
	dto := treeNodeDTO{nodeDTO: toNodeDTO(tree.Node), Children: []treeNodeDTO{}}
	for _, child := range tree.Children {
		dto.Children = append(dto.Children, toTreeDTO(child))
	}
	return dto
}

func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	trees, err := h.service.Tree(r.Context())
	if err != nil {
		h.logger.Error("partner tree", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]treeNodeDTO, 0, len(trees))
	for _, tree := range trees {
		out = append(out, toTreeDTO(tree))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roots": out})
}

func (h *Handler) handleUnassigned(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.service.Unassigned(r.Context())
	if err != nil {
		h.logger.Error("partner unassigned", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]nodeDTO, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, toNodeDTO(node))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"partners": out})
}

type statsResponse struct {
	Total      int     `json:"total"`
	Placed     int     `json:"placed"`
	Roots      int     `json:"roots"`
	Unassigned int     `json:"unassigned"`
	MaxDepth   int     `json:"max_depth"`
	AvgDepth   float64 `json:"avg_depth"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("partner stats", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, statsResponse{
		Total:      stats.Total,
		Placed:     stats.Placed,
		Roots:      stats.Roots,
		Unassigned: stats.Unassigned,
		MaxDepth:   stats.MaxDepth,
		AvgDepth:   stats.AvgDepth,
	})
}

func (h *Handler) handleSetRoot(w http.ResponseWriter, r *http.Request) {
	node, err := h.service.SetRoot(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNodeDTO(node))
}

func (h *Handler) handleCancelRoot(w http.ResponseWriter, r *http.Request) {
	node, err := h.service.CancelRoot(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNodeDTO(node))
}

type batchRootRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

func (h *Handler) handleBatchSetRoot(w http.ResponseWriter, r *http.Request) {
	var req batchRootRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	nodes, err := h.service.BatchSetRoot(r.Context(), shared.PrincipalFromContext(r.Context()), req.IDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]nodeDTO, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, toNodeDTO(node))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"partners": out})
}

type attachRequest struct {
	ParentID string `json:"parent_id" validate:"required"`
}

func (h *Handler) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	node, err := h.service.Attach(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.ParentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNodeDTO(node))
}

func (h *Handler) handleDetach(w http.ResponseWriter, r *http.Request) {
	node, err := h.service.Detach(r.Context(), shared.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNodeDTO(node))
}
