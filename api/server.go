/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. Logger:        Request logging
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for a frontend
  5. Authenticate:  Actor from bearer token or X-User-* headers (see auth.go)

ROUTE GROUPS:
  /api/employees, /api/policies, /api/years, /api/holidays   Reference data
  /api/requests                                              Leave requests
  /api/encashments                                           Encashments
  /api/balances                                              Balances and ledger
  /api/admin                                                 Year opening/closing
  /api/scenarios                                             Demo scenarios
  /healthz                                                   Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/leave-engine/leave"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	// CORSOrigins defaults to any origin when empty.
	CORSOrigins []string
	// JWTSecret enables bearer token authentication when set.
	JWTSecret string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Name"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(opts.JWTSecret))

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.SaveEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balances", h.GetEmployeeBalances)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.SavePolicy)
			r.Get("/{id}", h.GetPolicy)
		})

		r.Route("/years", func(r chi.Router) {
			r.Get("/", h.ListYears)
			r.Post("/", h.SaveYear)
			r.Get("/active", h.GetActiveYear)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.SaveHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.CreateRequest)
			r.Post("/quote", h.QuoteRequest)
			r.Get("/{id}", h.GetRequest)
			r.Put("/{id}", h.UpdateRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
			r.Put("/{id}/remarks", h.UpdateRemarks)
		})

		r.Route("/encashments", func(r chi.Router) {
			r.Get("/", h.ListEncashments)
			r.Post("/", h.CreateEncashment)
			r.Get("/{id}", h.GetEncashment)
			r.Post("/{id}/pay", h.PayEncashment)
			r.Post("/{id}/cancel", h.CancelEncashment)
		})

		r.Route("/balances", func(r chi.Router) {
			r.Get("/", h.ListBalances)
			r.Get("/{id}", h.GetBalance)
			r.Get("/{id}/transactions", h.GetBalanceTransactions)
			r.Post("/{id}/reconcile", h.ReconcileBalance)
			r.Post("/{id}/close", h.TransitionBalance((*leave.YearEndService).Close))
			r.Post("/{id}/reopen", h.TransitionBalance((*leave.YearEndService).Reopen))
			r.Post("/{id}/finalize", h.TransitionBalance((*leave.YearEndService).Finalize))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/years/{year}/open", h.OpenYear)
			r.Post("/years/{year}/close", h.CloseYear)
			r.Post("/close-ended", h.CloseEndedYears)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
