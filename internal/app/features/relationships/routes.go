// internal/app/features/relationships/routes.go
package relationships

import (
	"net/http"

	"github.com/dalemusser/coachhub/internal/app/system/auth"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the relationship endpoints under the path where this
// router is mounted (typically "/relationships" from bootstrap).
//
// Every route needs a signed-in user; the engine decides the rest.
// Restore is additionally gated to admins here.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.With(h.CreateLimit.Middleware(userKey)).Post("/", h.ServeCreate)
		pr.Get("/", h.ServeList)
		pr.Get("/{id}", h.ServeGet)
		pr.Delete("/{id}", h.ServeDelete)
		pr.Post("/{id}/respond", h.ServeRespond)
		pr.Post("/{id}/deactivate", h.ServeDeactivate)
		pr.Put("/{id}/permissions", h.ServePermissions)
		pr.Get("/{id}/capabilities", h.ServeCapabilities)

		pr.With(sm.RequireRole(models.RoleAdmin, models.RoleSuperAdmin)).
			Post("/{id}/restore", h.ServeRestore)
	})

	return r
}

func userKey(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok {
		return u.ID
	}
	return ""
}
