package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/freightdeck/freightdeck/internal/audit"
	"github.com/freightdeck/freightdeck/internal/observability"
	"github.com/freightdeck/freightdeck/internal/partners"
	"github.com/freightdeck/freightdeck/internal/permissions"
	"github.com/freightdeck/freightdeck/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	PermissionsHandler *permissions.Handler
	AuditHandler       *audit.Handler
	PartnersHandler    *partners.Handler
	JobHandler         *jobs.Handler
	Guard              *permissions.Guard
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with FreightDeck defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	if params.PermissionsHandler != nil {
		r.Route("/permissions", func(r chi.Router) {
			params.PermissionsHandler.MountRoutes(r, params.Guard)
		})
	}

	if params.AuditHandler != nil {
		r.Route("/audit-logs", func(r chi.Router) {
			params.AuditHandler.MountRoutes(r)
		})
	}

	if params.PartnersHandler != nil {
		r.Route("/partners", func(r chi.Router) {
			var guard func(http.Handler) http.Handler
			if params.Guard != nil {
				guard = params.Guard.RequireFunction("settings.partner_hierarchy")
			}
			params.PartnersHandler.MountRoutes(r, guard)
		})
	}

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
