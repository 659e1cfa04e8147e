/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/owners/{owner}/*   Record collections and range queries
  /api/scenarios/*        Demo scenarios
  /api/admin/*            Index provisioning
  /healthz                Liveness
  /metrics                Prometheus (optional)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        bool
	AccessLog      bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{HeaderDegraded},
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/owners/{owner}", func(r chi.Router) {
			r.Route("/expenses", func(r chi.Router) {
				c := h.Expenses.Collection
				r.Get("/", listRecords(c))
				r.Post("/", h.CreateExpense)
				r.Get("/{id}", getRecord(c))
				r.Delete("/{id}", deleteRecord(c))
			})

			r.Route("/habits", func(r chi.Router) {
				c := h.Habits.Habits
				r.Get("/", listRecords(c))
				r.Post("/", h.CreateHabit)
				r.Get("/{id}", getRecord(c))
				r.Delete("/{id}", deleteRecord(c))
				r.Post("/{id}/archive", h.ArchiveHabit)
				r.Get("/{id}/completions", h.HabitCompletions)
			})

			r.Route("/completions", func(r chi.Router) {
				c := h.Habits.Completions
				r.Get("/", listRecords(c))
				r.Post("/", h.CompleteHabit)
				r.Get("/{id}", getRecord(c))
				r.Delete("/{id}", deleteRecord(c))
			})

			r.Route("/todos", func(r chi.Router) {
				c := h.Todos.Collection
				r.Get("/", listRecords(c))
				r.Post("/", h.CreateTodo)
				r.Get("/open", h.OpenTodos)
				r.Get("/{id}", getRecord(c))
				r.Delete("/{id}", deleteRecord(c))
				r.Post("/{id}/done", h.CompleteTodo)
			})

			r.Route("/time-entries", func(r chi.Router) {
				c := h.TimeEntries.Collection
				r.Get("/", listRecords(c))
				r.Post("/", h.CreateTimeEntry)
				r.Get("/{id}", getRecord(c))
				r.Delete("/{id}", deleteRecord(c))
				r.Post("/{id}/stop", h.StopTimeEntry)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetOwner)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/indexes", h.IndexStatus)
			r.Post("/indexes/provision", h.ProvisionIndexes)
		})
	})

	return r
}
