package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/communitycar/errorsink/internal/api/middleware"
	"github.com/communitycar/errorsink/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	RecordHandler  http.HandlerFunc
	ListErrors     http.HandlerFunc
	GetError       http.HandlerFunc
	ResolveHandler http.HandlerFunc
	DeleteHandler  http.HandlerFunc

	StatsHandler      http.HandlerFunc
	StatsRangeHandler http.HandlerFunc

	BoundaryErrors  http.HandlerFunc
	RecoverBoundary http.HandlerFunc

	CleanupHandler   http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Metrics)
	r.Use(mw.Recovery)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/errors", orNotImplemented(deps.RecordHandler))
		r.Get("/api/v1/errors", orNotImplemented(deps.ListErrors))
		r.Get("/api/v1/errors/{errorID}", orNotImplemented(deps.GetError))

		r.Get("/api/v1/stats", orNotImplemented(deps.StatsHandler))
		r.Get("/api/v1/stats/range", orNotImplemented(deps.StatsRangeHandler))

		r.Get("/api/v1/boundaries", orNotImplemented(deps.BoundaryErrors))

		// Admin routes: lifecycle mutation and maintenance
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/errors/{errorID}/resolve", orNotImplemented(deps.ResolveHandler))
			r.Delete("/api/v1/errors/{errorID}", orNotImplemented(deps.DeleteHandler))
			r.Post("/api/v1/boundaries/{boundaryID}/recover", orNotImplemented(deps.RecoverBoundary))

			r.Post("/api/v1/admin/cleanup", orNotImplemented(deps.CleanupHandler))
			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
