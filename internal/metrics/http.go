package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CallerAnonymous labels requests that carry no identity.
const CallerAnonymous = "anonymous"

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetviz",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route, status class and caller role.",
		},
		[]string{"method", "route", "status", "caller"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetviz",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Uploads arrive as request bodies; downloads and exports leave as
	// response bodies.
	requestBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetviz",
			Name:      "request_body_bytes",
			Help:      "Declared request body size for requests that send one.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"route"},
	)

	responseBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetviz",
			Name:      "response_body_bytes",
			Help:      "Bytes written in response bodies.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		},
		[]string{"route"},
	)

	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sheetviz",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed.",
		},
	)
)

// HTTP returns a middleware that records request count, duration, body
// sizes and the in-flight gauge. callerRole names the role of the request's
// caller, or "" for anonymous requests; it runs after the handler so it sees
// any identity attached upstream. Scrapes of /metrics are not counted.
func HTTP(callerRole func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			requestsInFlight.Inc()
			defer requestsInFlight.Dec()

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := routePattern(r)
			caller := CallerAnonymous
			if callerRole != nil {
				if role := callerRole(r.Context()); role != "" {
					caller = role
				}
			}

			status := statusClass(sw.status)
			requestsTotal.WithLabelValues(r.Method, route, status, caller).Inc()
			requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
			if r.ContentLength > 0 {
				requestBytes.WithLabelValues(route).Observe(float64(r.ContentLength))
			}
			responseBytes.WithLabelValues(route).Observe(float64(sw.written))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// statusClass collapses a status code to 2xx, 4xx and so on, except 404 and
// 413 which the upload routes answer often enough to be worth telling apart.
func statusClass(code int) string {
	switch code {
	case http.StatusNotFound, http.StatusRequestEntityTooLarge:
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
