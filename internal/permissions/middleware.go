package permissions

import (
	"log/slog"
	"net/http"

	"github.com/freightdeck/freightdeck/internal/platform/httpx"
	"github.com/freightdeck/freightdeck/internal/shared"
)

// Guard builds route middleware that enforces function permissions for the
// request principal.
type Guard struct {
	service *Service
	logger  *slog.Logger
}

// NewGuard constructs a guard backed by the permission service.
func NewGuard(service *Service, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{service: service, logger: logger}
}

// RequireFunction rejects requests whose principal does not hold the given
// function permission. The check uses the same resolution path as the
// public resolve endpoint, so a toggle takes effect on the next request
// after its cache invalidation.
func (g *Guard) RequireFunction(functionKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if err := g.service.Allow(r.Context(), principal, functionKey); err != nil {
				g.logger.Warn("permission denied",
					slog.String("user_id", principal.UserID),
					slog.String("function", functionKey),
					slog.Any("error", err),
				)
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
