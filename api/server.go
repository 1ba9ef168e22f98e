/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Timeout:    Per-request deadline propagated through the context
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/assets/*          Assets, reconcile, eligibility
  /api/contracts/*       Contracts
  /api/skus              Contract SKUs
  /api/assignments/*     Contract assignments
  /api/programs/*        Vendor programs and sync
  /api/coverages/*       Program coverage rows
  /api/hardware-types    Hardware types
  /api/lifecycle/*       Lifecycle feed import
  /api/reconcile         Reconcile everything
  /api/sync/runs         Batch run history
  /api/scenarios/*       Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RequestTimeout bounds a single request, including sync runs.
const RequestTimeout = 60 * time.Second

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/assets", func(r chi.Router) {
			r.Get("/", h.ListAssets)
			r.Post("/", h.CreateAsset)
			r.Get("/{id}", h.GetAsset)
			r.Put("/{id}", h.UpdateAsset)
			r.Delete("/{id}", h.DeleteAsset)
			r.Post("/{id}/reconcile", h.ReconcileAsset)
			r.Post("/{id}/free", h.FreeAsset)
			r.Get("/{id}/eligibility", h.GetEligibility)
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Post("/", h.SaveContract)
			r.Get("/{id}", h.GetContract)
			r.Put("/{id}", h.SaveContract)
			r.Delete("/{id}", h.DeleteContract)
		})
		r.Post("/skus", h.SaveSKU)

		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", h.CreateAssignment)
			r.Put("/{id}", h.UpdateAssignment)
			r.Delete("/{id}", h.DeleteAssignment)
		})

		r.Route("/programs", func(r chi.Router) {
			r.Get("/", h.ListPrograms)
			r.Post("/", h.CreateProgram)
			r.Post("/{id}/sync", h.SyncProgram)
		})

		r.Route("/coverages", func(r chi.Router) {
			r.Post("/", h.SaveCoverage)
			r.Get("/{id}", h.GetCoverage)
			r.Post("/{id}/activate", h.ActivateCoverage)
			r.Post("/{id}/transition", h.TransitionCoverage)
		})

		r.Route("/hardware-types", func(r chi.Router) {
			r.Get("/", h.ListHardwareTypes)
			r.Post("/", h.SaveHardwareType)
		})
		r.Post("/lifecycle/import", h.ImportLifecycle)

		r.Post("/reconcile", h.ReconcileAll)
		r.Get("/sync/runs", h.ListSyncRuns)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
