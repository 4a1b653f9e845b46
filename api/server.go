/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Metrics:    Prometheus counters and latency
  4. Logging:    Structured request log (zap)
  5. CORS:       Cross-origin requests for the dashboard

SECURITY NOTE:
  No authentication middleware. The coordinator enforces every domain gate
  server-side regardless; auth is a deployment concern in front of this
  service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/rosterd:  Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, log *zap.Logger, corsOrigins []string) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/doctors", func(r chi.Router) {
			r.Get("/", h.ListDoctors)
			r.Post("/", h.CreateDoctor)
			r.Get("/{id}/duties", h.GetDoctorDuties)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/swaps", h.GetDoctorSwaps)
		})

		r.Route("/duties", func(r chi.Router) {
			r.Get("/", h.ListDutiesOnDate)
			r.Post("/", h.CreateDuty)
			r.Get("/{id}/targets", h.GetSwapTargets)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.SubmitLeave)
			r.Get("/calendar", h.LeaveCalendar)
			r.Get("/conflicts", h.CheckLeaveConflicts)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Post("/{id}/reject", h.RejectLeave)
			r.Post("/{id}/cancel", h.CancelLeave)
		})

		r.Route("/swaps", func(r chi.Router) {
			r.Post("/", h.ProposeSwap)
			r.Get("/pending", h.ListPendingSwaps)
			r.Post("/{id}/approve", h.ApproveSwap)
			r.Post("/{id}/reject", h.RejectSwap)
			r.Post("/{id}/accept", h.AcceptSwap)
			r.Post("/{id}/decline", h.DeclineSwap)
			r.Post("/{id}/cancel", h.CancelSwap)
		})

		r.Get("/audit", h.QueryAuditLog)

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger emits one structured line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
