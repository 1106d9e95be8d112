// Package metrics defines the Prometheus instruments of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clientflow"

var (
	// TransitionsTotal counts workflow operations.
	// Labels: operation (create, submit_for_review, approve, request_changes, delete),
	// result (success, error)
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "operations_total",
			Help:      "Total number of task workflow operations",
		},
		[]string{"operation", "result"},
	)

	// AttachmentUploadDuration tracks how long the upload phase of a submission takes.
	AttachmentUploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "attachment_upload_duration_seconds",
			Help:      "Duration of attachment uploads per submission in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RemindersFiredTotal counts reminders whose write-back won.
	RemindersFiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "fired_total",
			Help:      "Total number of reminders fired",
		},
	)

	// SweepsTotal counts reminder sweeps.
	// Labels: result (success, error)
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "sweeps_total",
			Help:      "Total number of reminder sweeps",
		},
		[]string{"result"},
	)

	// SweepDuration tracks how long a reminder sweep takes.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of reminder sweeps in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ActiveSessions is the number of open sessions by role.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of open sessions",
		},
		[]string{"role"},
	)

	// LiveSubscribers is the number of open task subscriptions.
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "subscribers",
			Help:      "Number of open task snapshot subscriptions",
		},
	)

	// HTTPRequestsTotal counts handled requests.
	// Labels: method, route, status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method", "route"},
	)
)

// Result turns an error into the result label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency by chi route pattern. It must
// run inside the router so the pattern is known once the handler returns.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
