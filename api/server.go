/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:   Unique ID per request for tracing
  2. RealIP:      Client address from proxy headers
  3. Logger:      zap request logging
  4. Recoverer:   Panic recovery (500 instead of crash)
  5. CORS:        Cross-origin requests for the entry screen
  6. Capability:  Bearer token -> ledger.Capability

ROUTE GROUPS:
  /api/auth/*           Open
  viewer group          Read endpoints and record entry
  admin group           Edits, locks, roster, backup/restore
  /healthz, /metrics    Open

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Capability resolution
  - cmd/pointledger/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/point-ledger/ledger"
)

// NewRouter creates a new router with all routes configured. An empty
// origin list allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
	}))

	r.Get("/healthz", h.Health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.withCapability)

		// Auth routes
		r.Post("/auth/admin", h.LoginAdmin)
		r.Post("/auth/viewer", h.LoginViewer)

		// Viewer routes
		r.Group(func(r chi.Router) {
			r.Use(h.require(ledger.RoleViewer))

			r.Get("/employees", h.ListEmployees)
			r.Get("/shifts", h.ListShifts)
			r.Get("/records", h.ListRecords)
			r.Post("/records", h.CreateRecord)
			r.Get("/dashboard", h.Dashboard)
			r.Get("/locks", h.ListLocks)
			r.Get("/locks/{month}", h.GetLock)
			r.Get("/reports/rankings.xlsx", h.RankingsWorkbook)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(h.require(ledger.RoleAdmin))

			r.Post("/employees", h.CreateEmployee)
			r.Put("/employees", h.ReplaceRoster)
			r.Put("/shifts", h.ReplaceShifts)

			r.Post("/records/batch", h.BatchRecords)
			r.Put("/records/{id}", h.UpdateRecord)
			r.Delete("/records/{id}", h.DeleteRecord)

			r.Put("/locks/{month}", h.LockMonth)
			r.Delete("/locks/{month}", h.UnlockMonth)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/export", h.ExportRecords)
				r.Post("/import", h.ImportRecords)
				r.Get("/roster.csv", h.ExportRoster)
				r.Post("/snapshot", h.TriggerSnapshot)
			})
		})
	})

	return r
}
