/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Exposes operational counters for the coordination engine. The interesting
  signal is not request volume but contention: how often swap commits lose
  the race and abort with a stale state.

METRICS:
  rosterd_http_requests_total{method,route,status}
  rosterd_http_request_duration_seconds{method,route}
  rosterd_swap_commits_total
  rosterd_swap_commit_aborts_total{reason}

SEE ALSO:
  - server.go: Mounts the middleware and /metrics
*/
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/roster-engine/roster"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosterd_http_requests_total",
		Help: "HTTP requests handled, by method, route pattern, and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rosterd_http_request_duration_seconds",
		Help:    "HTTP request latency, by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	swapCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rosterd_swap_commits_total",
		Help: "Swap exchanges committed (approve and accept paths).",
	})

	swapCommitAborts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosterd_swap_commit_aborts_total",
		Help: "Swap resolutions that did not commit, by reason.",
	}, []string{"reason"})
)

// observeSwapResolution records the outcome of an approve/accept attempt.
func observeSwapResolution(err error) {
	switch {
	case err == nil:
		swapCommits.Inc()
	case errors.Is(err, roster.ErrStaleSwapState):
		swapCommitAborts.WithLabelValues("stale").Inc()
	case errors.Is(err, roster.ErrInvalidTransition):
		swapCommitAborts.WithLabelValues("invalid_transition").Inc()
	default:
		swapCommitAborts.WithLabelValues("other").Inc()
	}
}

// metricsMiddleware records per-route counters and latency. Route patterns
// (not raw paths) keep the cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
