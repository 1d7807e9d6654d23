// internal/app/features/authidp/routes.go
package authidp

import (
	"github.com/dalemusser/coachhub/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for sign-in endpoints (mounted under /auth).
// Login and callback are public and share the per-IP limit.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	limited := r.With(h.LoginLimit.Middleware(ratelimit.ClientIP))
	limited.Get("/login", h.ServeLogin)
	limited.Get("/callback", h.ServeCallback)
	r.Post("/logout", h.ServeLogout)
	r.Get("/me", h.ServeMe)

	return r
}
