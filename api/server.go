/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. Logger:        Structured request logging (slog)
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for frontends
  5. Authenticate:  Bearer token to shop.Subject
  6. Visits/Greet:  X-Shop-Visitor and X-Shop-Greeting headers

ROUTE GROUPS:
  /healthz              Liveness
  /api/users, /api/me   Accounts
  /api/goods/*          Catalog
  /api/purchases/*      Settlement
  /api/refunds/*        Refund workflow
  /api/admin/*          Bulk maintenance jobs

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Visits         *VisitCounter
	Logger         *slog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Visits == nil {
		opts.Visits = NewVisitCounter(10)
	}
	if opts.Logger == nil {
		opts.Logger = h.Logger
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(NewStructuredLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{HeaderGreeting, HeaderVisitor},
		AllowCredentials: false,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Use(opts.Visits.Middleware)
		r.Use(h.Greeting)

		r.Get("/me", h.Me)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
		})

		r.Route("/goods", func(r chi.Router) {
			r.Get("/", h.ListGoods)
			r.Post("/", h.CreateGood)
			r.Get("/{id}", h.GetGood)
			r.Put("/{id}", h.UpdateGood)
			r.Delete("/{id}", h.DeleteGood)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", h.ListPurchases)
			r.Post("/", h.CreatePurchase)
			r.Get("/{id}", h.GetPurchase)
		})

		r.Route("/refunds", func(r chi.Router) {
			r.Get("/", h.ListRefunds)
			r.Post("/", h.CreateRefund)
			r.Get("/{id}", h.GetRefund)
			r.Post("/{id}/decline", h.DeclineRefund)
			r.Post("/{id}/approve", h.ApproveRefund)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/refunds/decline-all", h.DeclineAllRefunds)
			r.Post("/refunds/approve-all", h.ApproveAllRefunds)
			r.Get("/maintenance/runs", h.ListMaintenanceRuns)
		})
	})

	return r
}
