package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/kagi/internal/api/handler"
	mw "github.com/kiranshivaraju/kagi/internal/api/middleware"
	"github.com/kiranshivaraju/kagi/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
// A nil HealthHandler is answered with 501; other nil handlers leave their
// routes unregistered.
type Dependencies struct {
	RateLimit *mw.RateLimit
	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	HealthHandler http.HandlerFunc
	Scopes        *handler.Scopes
	Categories    *handler.Categories
	Entries       *handler.Entries
	TwoFactor     *handler.TwoFactor
	Envs          *handler.Envs
	AccessKeys    *handler.AccessKeys
	Account       *handler.Account
	Stats         *handler.Stats
	Export        *handler.Export
}

// NewRouter builds the Chi router with middleware stack and all routes.
// Authentication happens inside each handler; WithAuth renders its failures.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		if h := deps.Scopes; h != nil {
			r.Get("/api/v1/scopes", mw.WithAuth(h.List))
		}

		if h := deps.Categories; h != nil {
			r.Get("/api/v1/categories", mw.WithAuth(h.List))
			r.Post("/api/v1/categories", mw.WithAuth(h.Create))
			r.Get("/api/v1/categories/{id}", mw.WithAuth(h.Get))
			r.Put("/api/v1/categories/{id}", mw.WithAuth(h.Update))
			r.Delete("/api/v1/categories/{id}", mw.WithAuth(h.Delete))
		}

		if h := deps.Entries; h != nil {
			r.Get("/api/v1/entries", mw.WithAuth(h.List))
			r.Post("/api/v1/entries", mw.WithAuth(h.Create))
			r.Get("/api/v1/entries/{id}", mw.WithAuth(h.Get))
			r.Put("/api/v1/entries/{id}", mw.WithAuth(h.Update))
			r.Delete("/api/v1/entries/{id}", mw.WithAuth(h.Delete))
			r.Post("/api/v1/entries/{id}/reveal", mw.WithAuth(h.Reveal))
		}

		if h := deps.TwoFactor; h != nil {
			r.Get("/api/v1/2fa", mw.WithAuth(h.List))
			r.Post("/api/v1/2fa", mw.WithAuth(h.Create))
			r.Get("/api/v1/2fa/{id}", mw.WithAuth(h.Get))
			r.Put("/api/v1/2fa/{id}", mw.WithAuth(h.Update))
			r.Delete("/api/v1/2fa/{id}", mw.WithAuth(h.Delete))
			r.Post("/api/v1/2fa/{id}/reveal", mw.WithAuth(h.Reveal))
		}

		if h := deps.Envs; h != nil {
			r.Get("/api/v1/envs", mw.WithAuth(h.List))
			r.Post("/api/v1/envs", mw.WithAuth(h.Create))
			r.Get("/api/v1/envs/{id}", mw.WithAuth(h.Get))
			r.Put("/api/v1/envs/{id}", mw.WithAuth(h.Update))
			r.Delete("/api/v1/envs/{id}", mw.WithAuth(h.Delete))
			r.Get("/api/v1/envs/{id}/files", mw.WithAuth(h.ListFiles))
			r.Post("/api/v1/envs/{id}/files", mw.WithAuth(h.SaveFile))
			r.Delete("/api/v1/envs/{id}/files/{fileId}", mw.WithAuth(h.DeleteFile))
			r.Post("/api/v1/envs/{id}/files/{fileId}/reveal", mw.WithAuth(h.RevealFile))
		}

		if h := deps.Stats; h != nil {
			r.Get("/api/v1/stats", mw.WithAuth(h.Get))
		}
		if h := deps.Export; h != nil {
			r.Get("/api/v1/export", mw.WithAuth(h.Get))
		}

		// Key management: session credential only
		if h := deps.AccessKeys; h != nil {
			r.Get("/api/v1/access-keys", mw.WithAuth(h.List))
			r.Post("/api/v1/access-keys", mw.WithAuth(h.Create))
			r.Delete("/api/v1/access-keys/{id}", mw.WithAuth(h.Delete))
		}
		if h := deps.Account; h != nil {
			r.Delete("/api/v1/account/data", mw.WithAuth(h.DeleteData))
		}
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented")
	}
}
