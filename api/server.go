/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend clients

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// Aggregated occurrences across all active routines
		r.Get("/occurrences", h.ListOccurrences)

		r.Route("/routines", func(r chi.Router) {
			r.Get("/", h.ListRoutines)
			r.Post("/", h.CreateRoutine)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRoutine)
				r.Put("/", h.UpdateRoutine)
				r.Delete("/", h.SoftDeleteRoutine)
				r.Delete("/purge", h.PurgeRoutine)

				r.Get("/occurrences", h.ListRoutineOccurrences)
				r.Get("/progress", h.GetProgress)
				r.Post("/completions", h.CompleteOne)

				r.Put("/exceptions/{date}", h.SetException)
				r.Post("/pause", h.PauseUntil)
				r.Put("/active-to", h.SetActiveTo)

				r.Route("/bulk", func(r chi.Router) {
					r.Post("/delete", h.BulkDelete)
					r.Post("/skip", h.BulkSkip)
				})
				r.Get("/operations", h.ListOperations)
			})
		})
	})

	return r
}
