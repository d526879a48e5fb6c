/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. requestLog: Structured per-request log line (zerolog)
  5. CORS:       Cross-origin requests for the front-office UI

SECURITY NOTE:
  No authentication middleware. The service runs inside the office
  network behind the HR gateway, which handles auth.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/overtime", func(r chi.Router) {
			r.Post("/", h.LogOvertime)
			r.Put("/{id}", h.UpdateLog)
			r.Delete("/{id}", h.DeleteLog)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Put("/{id}", h.UpdateEmployee)
			r.Delete("/{id}", h.DeleteEmployee)
			r.Get("/{id}/logs", h.GetLogs)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Get("/{id}/entries", h.GetLedgerEntries)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/progress", h.GetProgress)
			r.Get("/{id}/certified-months", h.GetCertifiedMonths)
		})

		r.Post("/certifications", h.Certify)

		r.Route("/credits", func(r chi.Router) {
			r.Post("/debit", h.Debit)
			r.Post("/import", h.ImportHistorical)
			r.Post("/adjust", h.Adjust)
		})

		r.Get("/uncertified", h.GetUncertified)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/expire-sweep", h.ExpireSweep)
			r.Get("/reconcile/{id}", h.Reconcile)
			r.Post("/recover", h.Recover)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/", h.GetConfig)
			r.Post("/", h.SetConfig)
		})

		r.Route("/libraries", func(r chi.Router) {
			r.Get("/{category}", h.GetLibrary)
			r.Put("/{category}", h.SetLibrary)
		})

		// Demo data. Wipes the store; dev/demo environments only.
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}

// requestLog emits one structured line per request.
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
