package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alerts_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threshold_alerts_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	ValuesSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threshold_alerts_values_submitted_total",
			Help: "Total number of values accepted and evaluated",
		},
	)

	SubmissionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alerts_submissions_failed_total",
			Help: "Total number of rejected or rolled back value submissions",
		},
		[]string{"reason"}, // validation, persistence
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alerts_alerts_generated_total",
			Help: "Total number of alerts generated by breach evaluation",
		},
		[]string{"alert_type"},
	)

	AlertsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threshold_alerts_alerts_resolved_total",
			Help: "Total number of alerts transitioned to resolved",
		},
	)

	EventsPublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alerts_events_publish_failed_total",
			Help: "Total number of events that could not be delivered",
		},
		[]string{"topic"},
	)
)

// Middleware records request counts and latencies labeled with the chi route
// pattern rather than the raw path to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
