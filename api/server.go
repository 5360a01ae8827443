/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for internal tooling

SECURITY NOTE:
  No authentication middleware here. Authentication and authorization are
  handled by the surrounding application layer.

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
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Register routes
		r.Route("/registers", func(r chi.Router) {
			r.Get("/", h.ListRegisters)
			r.Post("/", h.CreateRegister)
			r.Get("/{name}/balance", h.GetBalance)
			r.Get("/{name}/movements", h.ListMovements)
			r.Post("/{name}/movements", h.RecordMovement)
			r.Get("/{name}/orders", h.ListOrders)
			r.Post("/{name}/deactivate", h.SetRegisterActive(false))
			r.Post("/{name}/activate", h.SetRegisterActive(true))
		})

		// Transfer routes
		r.Post("/transfers", h.Transfer)

		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Post("/{id}/complete", h.CompleteOrder)
		})
	})

	return r
}
