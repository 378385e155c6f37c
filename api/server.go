/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard frontend

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Station routes
		r.Route("/stations", func(r chi.Router) {
			r.Get("/", h.ListStations)
			r.Post("/", h.SaveStation)
			r.Get("/{id}", h.GetStation)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/series", h.GetSeries)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Get("/{id}/snapshot", h.GetSnapshot)
			r.Get("/{id}/snapshot/diff", h.DiffSnapshots)
		})

		// Movement routes
		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", h.CreateTransfer)
			r.Post("/validate", h.ValidateTransfer)
			r.Get("/{reference}", h.GetTransfer)
		})
		r.Post("/supplies", h.CreateSupply)
		r.Post("/revenues", h.DeclareRevenue)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/snapshots/backfill", h.BackfillSnapshots)
			r.Post("/stations/{id}/rebuild", h.RebuildLedger)
		})
	})

	return r
}
